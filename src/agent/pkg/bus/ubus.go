// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package bus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// commandRunner executes a command and returns its standard output
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// Ubus talks to ubusd through the ubus command line client.
type Ubus struct {
	binary  string
	timeout time.Duration
	run     commandRunner
}

// NewUbus creates a client using the given ubus binary. timeout bounds
// every call, both on the ubusd side (-t) and for the child process.
func NewUbus(binary string, timeout time.Duration) *Ubus {
	if binary == "" {
		binary = "ubus"
	}
	return &Ubus{
		binary:  binary,
		timeout: timeout,
		run:     execRunner,
	}
}

// Ensure Ubus implements Bus
var _ Bus = (*Ubus)(nil)

func (u *Ubus) call(ctx context.Context, args ...string) ([]byte, error) {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()

		secs := int((u.timeout + time.Second - 1) / time.Second)
		args = append([]string{"-t", strconv.Itoa(secs)}, args...)
	}

	log.Debugf("Executing bus call: %s %s", u.binary, strings.Join(args, " "))
	return u.run(ctx, u.binary, args...)
}

// Ping checks that ubusd answers
func (u *Ubus) Ping(ctx context.Context) error {
	if _, err := u.call(ctx, "list"); err != nil {
		return fmt.Errorf("failed to connect to ubus: %w", err)
	}
	return nil
}

// ListObjects runs "ubus -v list <prefix>*".
func (u *Ubus) ListObjects(ctx context.Context, prefix string) ([]Object, error) {
	out, err := u.call(ctx, "-v", "list", prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("lookup %s*: %w", prefix, err)
	}
	return parseObjectList(out)
}

// GetClients runs "ubus call <path> get_clients".
func (u *Ubus) GetClients(ctx context.Context, obj Object) ([]string, error) {
	out, err := u.call(ctx, "call", obj.Path, "get_clients")
	if err != nil {
		return nil, fmt.Errorf("invoke %s get_clients: %w", obj.Path, err)
	}
	return parseClients(out)
}

// parseObjectList parses verbose list output. Object lines look like
//
//	'hostapd.wlan0' @5b8c3a1e
//
// and are followed by tab-indented method signatures.
func parseObjectList(out []byte) ([]Object, error) {
	var objects []Object

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "'") {
			continue
		}

		end := strings.Index(line[1:], "'")
		if end < 0 {
			log.Errorf("Skipping malformed bus object line %q", line)
			continue
		}
		path := line[1 : end+1]

		rest := strings.TrimSpace(line[end+2:])
		if !strings.HasPrefix(rest, "@") {
			log.Errorf("Skipping bus object %s without id", path)
			continue
		}

		id, err := strconv.ParseUint(rest[1:], 16, 32)
		if err != nil {
			log.Errorf("Skipping bus object %s with invalid id %q", path, rest)
			continue
		}

		objects = append(objects, Object{Path: path, ID: uint32(id)})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading object list: %w", err)
	}

	return objects, nil
}

// parseClients extracts the keys of the "clients" table of a get_clients
// reply, keeping the order in which hostapd reported them.
func parseClients(out []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(out))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}

		if key != "clients" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
			continue
		}

		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}

		clients := []string{}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
			name, _ := tok.(string)

			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
			clients = append(clients, name)
		}
		return clients, nil
	}

	return nil, fmt.Errorf("%w: no clients table", ErrMalformedPayload)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrMalformedPayload, want, tok)
	}
	return nil
}
