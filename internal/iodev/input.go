package iodev

import "time"

// RunInputCycle runs one iteration of the input half of the audio loop:
// acquire the hardware buffer, push each attached dev-stream's slice
// through its converter into the stream's shm ring, advance the device
// read pointer by the minimum offset every stream has reached, and
// schedule each stream's next client wake-up.
func (d *Device) RunInputCycle(now time.Time) (int, error) {
	queued, tstamp, err := d.Backend.FramesQueued(now)
	if err != nil {
		d.handleSevereUnderrun(now)
		return 0, nil
	}
	d.RateEst.Check(uint32(queued), tstamp)
	if queued <= 0 {
		return 0, nil
	}

	area, err := d.Backend.GetBuffer(int(queued))
	if err != nil {
		return 0, err
	}
	frameBytes := d.Format.FrameBytes()
	frames := len(area) / frameBytes
	if frames <= 0 {
		return 0, nil
	}

	for _, ds := range d.Streams {
		if ds.Buffer.Ring == nil {
			continue
		}
		writable := ds.Buffer.Ring.Writable()
		want := frames
		if ds.Converter != nil {
			want = ds.Converter.InFramesToOut(frames)
		}
		if want > writable {
			// The stream's ring can't hold everything the device
			// captured this cycle: the client isn't reading fast
			// enough and the excess is dropped on the floor.
			d.RecordOverrun()
			want = writable
		}
		if want <= 0 {
			continue
		}

		claim, nFrames := ds.Buffer.Ring.WriteClaim(want)
		if nFrames <= 0 {
			continue
		}

		if ds.Converter != nil {
			srcFrames := ds.Converter.OutFramesToIn(nFrames)
			if srcFrames > frames {
				srcFrames = frames
			}
			n, err := ds.Converter.Convert(area[:srcFrames*frameBytes], srcFrames, claim)
			if err != nil {
				continue
			}
			ds.Buffer.Ring.CommitWrite(n)
			d.BufSt.OffsetUpdate(uint32(ds.StreamID), uint32(n))
			continue
		}

		n := nFrames
		if n > frames {
			n = frames
		}
		copy(claim[:n*frameBytes], area[:n*frameBytes])
		ds.Buffer.Ring.CommitWrite(n)
		d.BufSt.OffsetUpdate(uint32(ds.StreamID), uint32(n))
	}

	advance := d.BufSt.NewWritePoint()
	if err := d.Backend.PutBuffer(int(advance)); err != nil {
		return 0, err
	}

	d.scheduleStreamWakeups(now)
	return int(advance), nil
}

// scheduleStreamWakeups computes each attached stream's next client
// callback deadline from its cb_threshold and the device's rate-
// estimated clock.
func (d *Device) scheduleStreamWakeups(now time.Time) {
	rate := d.RateEst.EstimatedRate()
	if rate <= 0 {
		rate = float64(d.Format.RateHz)
	}
	for _, ds := range d.Streams {
		if ds.Buffer.Ring == nil {
			continue
		}
		deficit := int(ds.CBThreshold) - ds.Buffer.Ring.Readable()
		if deficit < 0 {
			deficit = 0
		}
		wait := time.Duration(float64(deficit) / rate * float64(time.Second))
		ds.AdvanceNextCBTs(now.Add(wait), false)
	}
}
