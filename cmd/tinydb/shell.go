package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/pingcap-incubator/tinydb/session"
	"github.com/pingcap-incubator/tinydb/terror"
	"github.com/spf13/cobra"
)

const (
	prompt         = "tinydb> "
	continuePrompt = "     -> "
)

func newShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive SQL shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()
			s := engine.NewSession()
			defer s.Close()
			return shellLoop(s)
		},
	}
}

func shellLoop(s *session.Session) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       filepath.Join(os.TempDir(), "tinydb_history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "^D",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer l.Close()

	var buf strings.Builder
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			// ^C drops a half typed statement, or leaves on an empty one.
			if buf.Len() == 0 {
				return nil
			}
			buf.Reset()
			l.SetPrompt(prompt)
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if buf.Len() == 0 && (line == "exit" || line == "quit") {
			return nil
		}
		if line == "" {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
		if !strings.HasSuffix(line, ";") {
			l.SetPrompt(continuePrompt)
			continue
		}
		runStatements(s, buf.String())
		buf.Reset()
		l.SetPrompt(prompt)
	}
}

func runStatements(s *session.Session, sql string) {
	ctx, cancel := signalContext()
	defer cancel()
	start := time.Now()
	results, err := s.ExecuteScript(ctx, sql)
	for _, rs := range results {
		printResult(os.Stdout, rs)
	}
	if err != nil {
		fmt.Printf("ERROR [%s]: %v\n", terror.KindOf(err), err)
		return
	}
	fmt.Printf("(%s)\n", time.Since(start).Round(time.Microsecond))
}
