package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"scanadc/host/loopback"
	"scanadc/host/scanlink"
	"scanadc/host/serial"
)

// session is an identified link to a board, real or simulated.
type session struct {
	settings settings
	link     *scanlink.Link
	dict     *scanlink.Dictionary
	sim      *loopback.Device
}

func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	s, err := loadSettings(cmd.Flags())
	if err != nil {
		return nil, err
	}
	sess := &session{settings: s}
	if s.Simulate {
		sess.sim = loopback.New(loopback.DefaultConfig())
		sess.link = scanlink.New(sess.sim)
		sess.verbosef("simulated board")
	} else {
		cfg := serial.DefaultConfig(s.Device)
		cfg.Baud = s.Baud
		cfg.ReadTimeout = s.Timeout
		if sess.link, err = scanlink.Open(cfg); err != nil {
			return nil, err
		}
		sess.verbosef("opened %s at %d baud", s.Device, s.Baud)
	}

	start := time.Now()
	if sess.dict, err = sess.link.Identify(ctx); err != nil {
		sess.Close()
		return nil, err
	}
	sess.verbosef("dictionary %s (%s) in %v", sess.dict.Version, sess.dict.BuildVersions, time.Since(start))
	return sess, nil
}

func (sess *session) Close() {
	sess.link.Close()
	if sess.sim != nil {
		sess.sim.Close()
	}
}

func (sess *session) verbosef(format string, args ...interface{}) {
	if sess.settings.Verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
