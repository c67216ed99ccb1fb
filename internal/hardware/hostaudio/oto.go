//go:build !headless

package hostaudio

import (
	"io"

	"github.com/ebitengine/oto/v3"
)

type otoPlayer struct {
	ctx    *oto.Context
	player *oto.Player
}

func newPlayer(sampleRate, channels int, src io.Reader) (player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready
	return &otoPlayer{ctx: ctx, player: ctx.NewPlayer(src)}, nil
}

func (p *otoPlayer) Play()  { p.player.Play() }
func (p *otoPlayer) Pause() { p.player.Pause() }

func (p *otoPlayer) Close() error {
	return p.player.Close()
}
