package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/stickycheZ101/HardLight/internal/dispatcher"
	"github.com/stickycheZ101/HardLight/internal/util"
)

// CmdQuit stops the scheduler from the command stream.
const CmdQuit = ":QUIT:"

// maxLineSize bounds one command line.
const maxLineSize = 64 * 1024

// readCommands dispatches every line of in and writes one reply line per
// command to out. It returns at EOF, on ctx cancellation or after :QUIT:,
// which also calls quit.
func readCommands(ctx context.Context, in io.Reader, out io.Writer, d *dispatcher.Dispatcher, quit func()) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cmd, args := util.SplitCommand(line)
		if cmd == CmdQuit {
			fmt.Fprintln(out, CmdQuit, "OK")
			quit()
			return
		}

		result, err := d.Dispatch(dispatcher.Event{Command: cmd, Args: args})
		fmt.Fprintln(out, formatReply(cmd, result, err))
	}
	if err := scanner.Err(); err != nil {
		Logger.Error("Command stream failed", "error", err)
	}
}

// formatReply renders "<cmd> OK [result]" or "<cmd> ERR <error>". String
// results are written as is, anything else as JSON.
func formatReply(cmd string, result any, err error) string {
	if err != nil {
		return fmt.Sprintf("%s ERR %v", cmd, err)
	}
	switch r := result.(type) {
	case nil:
		return cmd + " OK"
	case string:
		return cmd + " OK " + r
	default:
		data, jerr := json.Marshal(r)
		if jerr != nil {
			return fmt.Sprintf("%s ERR encoding reply: %v", cmd, jerr)
		}
		return cmd + " OK " + string(data)
	}
}
