package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	serial "github.com/jacobsa/go-serial/serial"
)

// OpenSerial opens the GPS serial port with 8N1 framing.
func OpenSerial(portName string, baudRate int) (io.ReadWriteCloser, error) {
	serialOpts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", portName, err)
	}
	return port, nil
}

// Scan reads NMEA lines from r and calls fn for every completed fix until
// r fails or ctx is done. Unparsable sentences are logged and skipped.
func Scan(ctx context.Context, r io.Reader, log *slog.Logger, fn func(Fix)) error {
	var p Parser
	reader := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := reader.ReadString('\n')
		if line != "" {
			fix, ok, perr := p.Feed(line)
			switch {
			case perr != nil:
				// noisy GPS or partial sentences
				log.Debug("nmea parse error", "error", perr, "line", line)
			case ok:
				fn(fix)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read gps: %w", err)
		}
	}
}
