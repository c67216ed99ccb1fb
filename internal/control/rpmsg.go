package control

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// RPMsg endpoints carry at most this many bytes per message.
const RPMsgBufSize = 512

const rpmsgWaitTimeout = 2 * time.Second

// RPMsg serves requests arriving on an RPMsg character device, one frame
// per message. Response payloads longer than a message are truncated.
type RPMsg struct {
	dev     io.ReadWriteCloser
	handler *Handler
}

// OpenRPMsg opens the device at path. The node appears with restrictive
// permissions shortly before udev fixes them up, so permission errors are
// retried for a short while.
func OpenRPMsg(path string, h *Handler) (*RPMsg, error) {
	f, err := waitForPermission(path)
	if err != nil {
		return nil, fmt.Errorf("rpmsg %s: %w", path, err)
	}
	return NewRPMsg(f, h), nil
}

// NewRPMsg serves h on an already open endpoint.
func NewRPMsg(dev io.ReadWriteCloser, h *Handler) *RPMsg {
	return &RPMsg{dev: dev, handler: h}
}

// Serve handles messages until the device fails or ctx is done.
func (t *RPMsg) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.dev.Close()
	}()

	buf := make([]byte, RPMsgBufSize)
	for {
		n, err := t.dev.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("rpmsg read: %w", err)
		}

		var resp Response
		var req Request
		if err := req.UnmarshalBinary(buf[:n]); err != nil {
			log.Printf("[control] rpmsg: %v", err)
			resp = Response{Status: StatusError}
		} else {
			resp = t.handler.Handle(ctx, req)
		}
		if limit := RPMsgBufSize - ResponseHeaderSize; len(resp.Payload) > limit {
			resp.Payload = resp.Payload[:limit]
		}
		out, _ := resp.MarshalBinary()
		if _, err := t.dev.Write(out); err != nil {
			return fmt.Errorf("rpmsg write: %w", err)
		}
	}
}

func waitForPermission(name string) (*os.File, error) {
	var f *os.File
	var err error
	sl := time.Millisecond
	for tout := time.Duration(0); tout < rpmsgWaitTimeout; tout += sl {
		f, err = os.OpenFile(name, os.O_RDWR, 0)
		if err == nil || !os.IsPermission(err) {
			break
		}
		time.Sleep(sl)
	}
	return f, err
}
