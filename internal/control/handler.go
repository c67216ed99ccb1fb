package control

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"rtaudio-pipeline/internal/pipeline"
)

const defaultTimeout = 2 * time.Second

// Handler applies requests to the pipelines of a registry. A request that
// fails validation leaves every pipeline untouched.
type Handler struct {
	reg     *pipeline.Registry
	timeout time.Duration
}

func NewHandler(reg *pipeline.Registry, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Handler{reg: reg, timeout: timeout}
}

// Handle runs one request to completion.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	resp := Response{Type: req.Type}

	if req.Type == CmdPipelineList {
		infos := make([]pipeline.Info, 0)
		for _, p := range h.reg.List() {
			infos = append(infos, p.Info())
		}
		data, err := json.Marshal(infos)
		if err != nil {
			resp.Status = StatusError
			return resp
		}
		resp.Payload = data
		return resp
	}

	cmd, ok := toCommand(req)
	if !ok {
		resp.Status = StatusUnknownCommand
		return resp
	}
	p, err := h.reg.Get(int(req.Pipeline))
	if err != nil {
		resp.Status = StatusInvalidPipeline
		return resp
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	res, err := p.Exec(ctx, cmd)
	if err != nil {
		log.Printf("[control] %s pipeline %d element %d: %v", req.Type, req.Pipeline, req.Element, err)
		resp.Status = statusOf(err)
		resp.Payload = []byte(err.Error())
		return resp
	}
	if res.Text != "" {
		resp.Payload = []byte(res.Text)
	}
	return resp
}

func toCommand(req Request) (pipeline.Command, bool) {
	cmd := pipeline.Command{
		Element: int(req.Element),
		A:       int(req.Args[0]),
		B:       int(req.Args[1]),
	}
	switch req.Type {
	case CmdPipelineReset:
		cmd.Kind = pipeline.ResetPipeline
	case CmdElementReset:
		cmd.Kind = pipeline.ResetElement
	case CmdRoutingConnect:
		cmd.Kind = pipeline.Connect
	case CmdRoutingDisconnect:
		cmd.Kind = pipeline.Disconnect
	case CmdPLLEnable:
		cmd.Kind = pipeline.PLLEnable
	case CmdPLLDisable:
		cmd.Kind = pipeline.PLLDisable
	case CmdPLLSetDomains:
		cmd.Kind = pipeline.PLLSetDomains
	case CmdDump:
		cmd.Kind = pipeline.Dump
	default:
		return cmd, false
	}
	return cmd, true
}

func statusOf(err error) Status {
	switch {
	case errors.Is(err, pipeline.ErrNoPipeline):
		return StatusInvalidPipeline
	case errors.Is(err, pipeline.ErrInvalidElement):
		return StatusInvalidElement
	case errors.Is(err, pipeline.ErrInvalidArgument):
		return StatusInvalidArgument
	case errors.Is(err, pipeline.ErrUnknownCommand):
		return StatusUnknownCommand
	case errors.Is(err, pipeline.ErrBusy), errors.Is(err, context.DeadlineExceeded):
		return StatusBusy
	}
	return StatusError
}
