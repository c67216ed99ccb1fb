//go:build headless

package hostaudio

import "io"

type nullPlayer struct{}

func newPlayer(sampleRate, channels int, src io.Reader) (player, error) {
	return nullPlayer{}, nil
}

func (nullPlayer) Play()        {}
func (nullPlayer) Pause()       {}
func (nullPlayer) Close() error { return nil }
