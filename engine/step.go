package engine

import (
	"errors"
	"math"

	"github.com/arloliu/cwkeyer/fault"
	"github.com/arloliu/cwkeyer/rtlog"
	"github.com/arloliu/cwkeyer/sample"
)

// Step runs one RT period at nowUs:
//  1. read the input lines
//  2. apply a newly published configuration generation
//  3. tick the iambic processor and merge the straight and remote keys
//  4. push the sample
//  5. drain the hard-RT consumer into the sinks
//
// A consumer fault, a late step or an invalid input snapshot silences the sinks
// before anything else, and the keyer stays silent until the supervisor requests a
// resync. Step must be called from one goroutine.
func (k *Keyer) Step(nowUs int64) {
	k.steps.Add(1)
	k.checkSchedule(nowUs)

	gpio := k.gpio.ReadGpio(nowUs)
	if !gpio.Valid() {
		if !k.silenced {
			k.fault.Set(fault.HardwareFault, uint32(gpio))
			k.silence(nowUs, fault.HardwareFault)
		}
		gpio = 0
	}

	changed := k.applyConfig(nowUs)

	smp := k.proc.Tick(nowUs, gpio)
	local := smp.LocalKey() || k.straight && gpio.Straight()
	remote := k.remote != nil && k.remote.RemoteKey(nowUs)

	out := sample.Concrete(gpio, local, remote)
	if changed {
		out = out.WithConfigChanged()
	}
	k.producer.Push(out)

	if k.resyncReq.CompareAndSwap(true, false) {
		k.hardRT.Resync()
		k.silenced = false
		k.rtlog.Info(nowUs, "keyer resynced", rtlog.F("position", int64(k.hardRT.Position())))
	}
	if !k.silenced && k.fault.IsActive() {
		// raised outside the RT loop, e.g. by a peripheral driver
		k.silence(nowUs, k.fault.Code())
	}

	k.drain(nowUs)
}

// checkSchedule raises ProducerOverrun when more than one tick was skipped.
func (k *Keyer) checkSchedule(nowUs int64) {
	if k.stepped {
		if gap := nowUs - k.lastStepUs; gap > 2*k.tickUs {
			missed := gap/k.tickUs - 1
			k.missed.Add(uint64(missed))
			k.fault.Set(fault.ProducerOverrun, saturate32(missed))
			k.silence(nowUs, fault.ProducerOverrun)
		}
	}
	k.stepped = true
	k.lastStepUs = nowUs
}

func (k *Keyer) applyConfig(nowUs int64) bool {
	snap := k.cfg.Load()
	if snap.Generation == k.generation {
		return false
	}
	k.generation = snap.Generation

	if err := k.proc.SetConfig(snap.Keyer.Iambic); err != nil {
		k.rtlog.Error(nowUs, "config rejected", rtlog.F("generation", int64(snap.Generation)))
		return false
	}
	k.straight = snap.Keyer.Engine.StraightKey
	if k.decoder != nil {
		k.decoder.SetEnabled(snap.Keyer.Engine.Decoder)
	}
	k.applied.Store(snap.Generation)

	k.rtlog.Info(nowUs, "config applied",
		rtlog.F("generation", int64(snap.Generation)),
		rtlog.F("wpm", int64(snap.Keyer.Iambic.WPM)),
		rtlog.F("mode", int64(snap.Keyer.Iambic.Mode)))

	return true
}

func (k *Keyer) drain(nowUs int64) {
	if k.silenced {
		return
	}

	for {
		smp, ok, err := k.hardRT.Tick()
		if err != nil {
			var code fault.Code
			errors.As(err, &code)
			k.silence(nowUs, code)

			return
		}
		if !ok {
			return
		}
		if smp.IsSilence() {
			continue
		}
		k.setKey(nowUs, smp.LocalKey(), smp.LocalKey() || smp.RemoteKey())
	}
}

// silence forces the sinks up, then logs the fault once.
func (k *Keyer) silence(nowUs int64, code fault.Code) {
	k.setKey(nowUs, false, false)
	if k.silenced {
		return
	}
	k.silenced = true
	k.rtlog.Error(nowUs, "keying fault, output silenced",
		rtlog.F("code", int64(code)),
		rtlog.F("data", int64(k.fault.Data())))
}

func (k *Keyer) setKey(nowUs int64, tx, tone bool) {
	if k.sink != nil {
		k.sink.SetKey(nowUs, tx)
	}
	k.txDown.Store(tx)
	if k.tone != nil {
		k.tone.SetKey(nowUs, tone)
	}
	k.toneDown.Store(tone)
}

func saturate32(v int64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}

	return uint32(v)
}
