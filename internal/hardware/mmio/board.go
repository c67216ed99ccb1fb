package mmio

import (
	"fmt"
	"log"

	"rtaudio-pipeline/internal/hardware"
)

const pllWindowSize = 2 * audioPLLStride

// BoardConfig locates the register blocks in physical memory. SAI instance
// n (from 1) sits at SAIBase + (n-1)*SAIStride and clocks domain n-1.
type BoardConfig struct {
	Device    string
	SAIBase   uint64
	SAIStride uint64
	SAICount  int
	SAILines  int
	PLLBase   uint64
}

// Board owns the mappings of one SoC.
type Board struct {
	windows []*Window
	set     *hardware.Set
}

func Open(cfg BoardConfig) (*Board, error) {
	if cfg.SAICount < 1 || cfg.SAICount > hardware.MaxSAIInstances {
		return nil, fmt.Errorf("mmio: %d sai instances", cfg.SAICount)
	}
	if cfg.SAILines <= 0 {
		cfg.SAILines = 1
	}
	b := &Board{set: &hardware.Set{SAI: make(map[int]hardware.SAI)}}
	domains := make(map[int]*SAI)
	for n := 1; n <= cfg.SAICount; n++ {
		phys := cfg.SAIBase + uint64(n-1)*cfg.SAIStride
		w, err := Map(cfg.Device, phys, saiWindowSize)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.windows = append(b.windows, w)
		sai := NewSAI(w, n, cfg.SAILines, phys)
		b.set.SAI[n] = sai
		domains[n-1] = sai
	}
	b.set.Clocks = NewClocks(domains)

	if cfg.PLLBase != 0 {
		w, err := Map(cfg.Device, cfg.PLLBase, pllWindowSize)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.windows = append(b.windows, w)
		b.set.Adjuster = NewAudioPLLs(w)
	}
	log.Printf("[mmio] mapped %d sai instances at %#x", cfg.SAICount, cfg.SAIBase)
	return b, nil
}

func (b *Board) Set() *hardware.Set { return b.set }

func (b *Board) Close() error {
	var first error
	for _, w := range b.windows {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	b.windows = nil
	return first
}
