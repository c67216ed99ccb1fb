// Package control carries runtime commands to running pipelines over
// fixed-layout binary frames.
package control

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var Order = binary.LittleEndian

// Frame sizes.
const (
	RequestSize        = 24
	ResponseHeaderSize = 12
)

// CommandType is the wire discriminant of a request.
type CommandType uint32

const (
	CmdPipelineReset CommandType = iota + 1
	CmdElementReset
	CmdRoutingConnect
	CmdRoutingDisconnect
	CmdPLLEnable
	CmdPLLDisable
	CmdPLLSetDomains
	CmdDump
	CmdPipelineList
)

var commandNames = map[CommandType]string{
	CmdPipelineReset:     "pipeline-reset",
	CmdElementReset:      "element-reset",
	CmdRoutingConnect:    "connect",
	CmdRoutingDisconnect: "disconnect",
	CmdPLLEnable:         "pll-enable",
	CmdPLLDisable:        "pll-disable",
	CmdPLLSetDomains:     "pll-domains",
	CmdDump:              "dump",
	CmdPipelineList:      "list",
}

func (c CommandType) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", uint32(c))
}

// ParseCommandType maps a command name back to its type.
func ParseCommandType(name string) (CommandType, bool) {
	for c, n := range commandNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

type Status uint32

const (
	StatusSuccess Status = iota
	StatusError
	StatusInvalidPipeline
	StatusInvalidElement
	StatusInvalidArgument
	StatusUnknownCommand
	StatusBusy
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusInvalidPipeline:
		return "invalid pipeline"
	case StatusInvalidElement:
		return "invalid element"
	case StatusInvalidArgument:
		return "invalid argument"
	case StatusUnknownCommand:
		return "unknown command"
	case StatusBusy:
		return "busy"
	}
	return fmt.Sprintf("status(%d)", uint32(s))
}

var ErrShortFrame = errors.New("control: short frame")

// Request is a command frame:
//
//	0  type      u32
//	4  pipeline  u32
//	8  element   u32
//	12 args      3 x i32
type Request struct {
	Type     CommandType
	Pipeline uint32
	Element  uint32
	Args     [3]int32
}

func (r Request) MarshalBinary() ([]byte, error) {
	b := make([]byte, RequestSize)
	Order.PutUint32(b[0:], uint32(r.Type))
	Order.PutUint32(b[4:], r.Pipeline)
	Order.PutUint32(b[8:], r.Element)
	for i, a := range r.Args {
		Order.PutUint32(b[12+4*i:], uint32(a))
	}
	return b, nil
}

func (r *Request) UnmarshalBinary(b []byte) error {
	if len(b) < RequestSize {
		return fmt.Errorf("%w: %d bytes", ErrShortFrame, len(b))
	}
	r.Type = CommandType(Order.Uint32(b[0:]))
	r.Pipeline = Order.Uint32(b[4:])
	r.Element = Order.Uint32(b[8:])
	for i := range r.Args {
		r.Args[i] = int32(Order.Uint32(b[12+4*i:]))
	}
	return nil
}

// Response is a reply frame:
//
//	0  type     u32 (echo of the request type)
//	4  status   u32
//	8  length   u32
//	12 payload  length bytes
type Response struct {
	Type    CommandType
	Status  Status
	Payload []byte
}

func (r Response) MarshalBinary() ([]byte, error) {
	b := make([]byte, ResponseHeaderSize+len(r.Payload))
	Order.PutUint32(b[0:], uint32(r.Type))
	Order.PutUint32(b[4:], uint32(r.Status))
	Order.PutUint32(b[8:], uint32(len(r.Payload)))
	copy(b[ResponseHeaderSize:], r.Payload)
	return b, nil
}

func (r *Response) UnmarshalBinary(b []byte) error {
	if len(b) < ResponseHeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrShortFrame, len(b))
	}
	r.Type = CommandType(Order.Uint32(b[0:]))
	r.Status = Status(Order.Uint32(b[4:]))
	n := Order.Uint32(b[8:])
	if uint32(len(b)-ResponseHeaderSize) < n {
		return fmt.Errorf("%w: payload %d of %d bytes", ErrShortFrame, len(b)-ResponseHeaderSize, n)
	}
	r.Payload = append([]byte(nil), b[ResponseHeaderSize:ResponseHeaderSize+int(n)]...)
	return nil
}
