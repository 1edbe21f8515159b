package bridge

import (
	"bufio"
	"context"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"toolkiosk/wire"
)

const readErrorBackoff = 200 * time.Millisecond

// OpenSerial opens the controller's serial device. Failure here is fatal at
// startup: the bridge is useless without its transport.
func OpenSerial(device string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(device, &serial.Mode{BaudRate: baud})
}

// LinePort speaks the line-oriented ASCII protocol over a serial device.
type LinePort struct {
	w   io.Writer
	log *zap.SugaredLogger
}

func NewLinePort(w io.Writer, log *zap.SugaredLogger) *LinePort {
	return &LinePort{w: w, log: log}
}

func (p *LinePort) Send(c wire.Command) error {
	line := wire.EncodeCommand(c)
	_, err := io.WriteString(p.w, line)
	if err == nil {
		p.log.Debugw("serial tx", "line", line[:len(line)-1])
	}
	return err
}

// ReadLines pumps inbound reply lines into handle until ctx is cancelled.
// Transient read errors are logged and retried after a short pause; the
// loop never terminates the process on garbled input.
func ReadLines(ctx context.Context, r io.Reader, handle func(wire.Reply), log *zap.SugaredLogger) {
	br := bufio.NewReader(r)
	for {
		if ctx.Err() != nil {
			return
		}
		line, err := br.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return
			}
			log.Warnw("serial read error", "err", err)
			time.Sleep(readErrorBackoff)
			continue
		}
		reply, ok := wire.ParseReply(line)
		if !ok {
			continue
		}
		log.Debugw("serial rx", "tag", reply.Tag, "request_id", reply.RequestID)
		handle(reply)
	}
}

// FramePort speaks the sentinel-framed CBOR protocol over a serial device.
type FramePort struct {
	w   io.Writer
	log *zap.SugaredLogger
}

func NewFramePort(w io.Writer, log *zap.SugaredLogger) *FramePort {
	return &FramePort{w: w, log: log}
}

func (p *FramePort) Send(c wire.Command) error {
	frame, err := wire.EncodeCommandFrame(c)
	if err != nil {
		return err
	}
	_, err = p.w.Write(frame)
	return err
}

// ReadFrames accumulates raw bytes and decodes whole frames out of the
// buffer. The buffer is reset after each decode pass; a frame split across
// the reset is lost, same naive behavior as the line between two sentinels.
func ReadFrames(ctx context.Context, r io.Reader, handle func(wire.Reply), log *zap.SugaredLogger) {
	buf := make([]byte, 512)
	rx := make([]byte, 0, 1024)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := r.Read(buf)
		if n > 0 {
			rx = append(rx, buf[:n]...)
			for _, reply := range wire.DecodeReplyFrames(rx) {
				log.Debugw("serial rx frame", "tag", reply.Tag, "request_id", reply.RequestID)
				handle(reply)
			}
			rx = rx[:0]
		}
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return
			}
			log.Warnw("serial read error", "err", err)
			time.Sleep(readErrorBackoff)
		}
	}
}
