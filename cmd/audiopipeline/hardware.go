package main

import (
	"fmt"
	"log"
	"slices"

	"rtaudio-pipeline/internal/config"
	"rtaudio-pipeline/internal/hardware"
	"rtaudio-pipeline/internal/hardware/hostaudio"
	"rtaudio-pipeline/internal/hardware/mmio"
	"rtaudio-pipeline/internal/hardware/sim"
	"rtaudio-pipeline/internal/presets"
)

const simBitClock = 3072000 // 48 kHz, 2 x 32-bit slots

// openHardware builds the backend selected by HARDWARE. The returned
// function releases it.
func openHardware(svc config.Service, req presets.Requirements, sampleRate int) (*hardware.Set, func(), error) {
	instances := 1
	if len(req.SAIInstances) > 0 {
		instances = slices.Max(req.SAIInstances)
	}
	lines := max(req.Lines, 1)

	switch svc.Hardware {
	case "sim":
		board := sim.NewBoard(instances, lines, simBitClock)
		for _, s := range board.SAI {
			s.Loopback = true
			s.Depth = sampleRate // one second
		}
		board.Realtime()
		log.Printf("Simulated hardware: %d sai instances, %d lines", instances, lines)
		return board.Set(), func() {}, nil

	case "host":
		board := sim.NewBoard(instances, lines, simBitClock)
		board.Realtime()
		set := board.Set()
		out, err := hostaudio.New(1, 2, sampleRate, sampleRate/10)
		if err != nil {
			return nil, nil, err
		}
		set.SAI[1] = out
		log.Printf("Host audio output on sai1, %d simulated instances", instances)
		return set, func() { out.Close() }, nil

	case "mmio":
		b, err := mmio.Open(mmio.BoardConfig{
			Device:    svc.MMIODevice,
			SAIBase:   svc.MMIOSAIBase,
			SAIStride: svc.MMIOSAIStride,
			SAICount:  max(svc.MMIOSAICount, instances),
			SAILines:  lines,
			PLLBase:   svc.MMIOPLLBase,
		})
		if err != nil {
			return nil, nil, err
		}
		return b.Set(), func() { b.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown HARDWARE %q (sim, host, mmio)", svc.Hardware)
}
