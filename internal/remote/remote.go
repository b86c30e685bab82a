// Package remote implements the RemoteCommand contract: invoking
// commands and transferring files on a remote host over an
// authenticated SSH channel.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/stormbench/orchestrator/pkg/log"
	"github.com/stormbench/orchestrator/pkg/metrics"
	"github.com/stormbench/orchestrator/pkg/types"
	"golang.org/x/crypto/ssh"
)

// Result is the outcome of a single remote command invocation.
//
// ExitCode == -1 with a non-nil Err indicates the session itself failed
// (timeout, auth, DNS, transport); any non-negative ExitCode means the
// command ran and the channel is healthy.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
	ErrorKind types.ErrorKind
}

// Success reports whether the remote command ran and exited zero.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

const (
	connectTimeout = 10 * time.Second
	defaultTimeout = 60 * time.Second
)

// Runner is this repository's RemoteCommand implementation. Sessions
// are opened per invocation; no persistent channel is assumed between
// calls.
type Runner struct{}

// New creates a Runner.
func New() *Runner {
	return &Runner{}
}

var runnerLog = log.WithComponent("remote")

// Run executes command on the host identified by address, authenticating
// with credentials, and returns its exit code, stdout, and stderr.
// Every call has a timeout; a caller-supplied timeout of zero uses the
// 60s default.
func (r *Runner) Run(ctx context.Context, address string, creds types.Credentials, command string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RemoteCommandDuration)

	client, err := dial(address, creds)
	if err != nil {
		metrics.RemoteCommandFailures.WithLabelValues("connect").Inc()
		return sessionError(err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		metrics.RemoteCommandFailures.WithLabelValues("session").Inc()
		return sessionError(fmt.Errorf("creating ssh session: %w", err))
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		return resultFromRun(err, stdout.String(), stderr.String())
	case <-time.After(timeout):
		metrics.RemoteCommandFailures.WithLabelValues("timeout").Inc()
		runnerLog.Warn().Str("host", address).Dur("timeout", timeout).Msg("remote command timed out")
		// The remote process is left for the remote OS to reap; we do
		// not attempt to kill it over this (already abandoned) session.
		return Result{ExitCode: -1, Err: fmt.Errorf("command timed out after %s", timeout), ErrorKind: types.ErrorTransientRemote}
	case <-ctx.Done():
		return Result{ExitCode: -1, Err: ctx.Err(), ErrorKind: types.ErrorTransientRemote}
	}
}

// PutFile writes localContent to remotePath on the host, creating
// directories as needed. Grounded on the stdin-piped "install" pattern:
// the file is streamed over the session's stdin rather than inlined
// into the shell command.
func (r *Runner) PutFile(ctx context.Context, address string, creds types.Credentials, localContent []byte, remotePath string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client, err := dial(address, creds)
	if err != nil {
		return sessionError(err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return sessionError(fmt.Errorf("creating ssh session: %w", err))
	}
	defer session.Close()

	session.Stdin = bytes.NewReader(localContent)

	done := make(chan struct {
		out []byte
		err error
	}, 1)
	go func() {
		out, err := session.CombinedOutput(fmt.Sprintf("install -m 0644 -D /dev/stdin %s", remotePath))
		done <- struct {
			out []byte
			err error
		}{out, err}
	}()

	select {
	case r := <-done:
		return resultFromRun(r.err, string(r.out), "")
	case <-time.After(timeout):
		return Result{ExitCode: -1, Err: fmt.Errorf("file transfer timed out after %s", timeout), ErrorKind: types.ErrorTransientRemote}
	case <-ctx.Done():
		return Result{ExitCode: -1, Err: ctx.Err(), ErrorKind: types.ErrorTransientRemote}
	}
}

func dial(address string, creds types.Credentials) (*ssh.Client, error) {
	auths, err := authMethods(creds)
	if err != nil {
		return nil, err
	}

	port := creds.Port
	if port == 0 {
		port = 22
	}

	config := &ssh.ClientConfig{
		User:            creds.User,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // fleets rotate hosts faster than known_hosts keeps up
		Timeout:         connectTimeout,
	}

	return ssh.Dial("tcp", net.JoinHostPort(address, fmt.Sprintf("%d", port)), config)
}

func authMethods(creds types.Credentials) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if len(creds.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(creds.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if creds.Password != "" {
		methods = append(methods, ssh.Password(creds.Password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("auth-unsupported: no private key or password configured")
	}

	return methods, nil
}

// sessionError wraps a dial/session-open failure. Most such failures
// are transient transport problems (DNS, connection refused, dial
// timeout) rather than a real auth rejection; only the latter is
// tagged ErrorAuthFailure.
func sessionError(err error) Result {
	return Result{ExitCode: -1, Err: err, ErrorKind: classifyDialError(err)}
}

// classifyDialError distinguishes an authentication rejection — an
// unconfigured/unsupported credential or the SSH handshake itself
// rejecting every offered auth method — from every other dial/session
// failure, which is transient by default.
func classifyDialError(err error) types.ErrorKind {
	if err == nil {
		return types.ErrorNone
	}
	msg := err.Error()
	if strings.Contains(msg, "auth-unsupported") ||
		strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "parsing private key") {
		return types.ErrorAuthFailure
	}
	return types.ErrorTransientRemote
}

func resultFromRun(runErr error, stdout, stderr string) Result {
	if runErr == nil {
		return Result{ExitCode: 0, Stdout: stdout, Stderr: stderr}
	}
	if exitErr, ok := runErr.(*ssh.ExitError); ok {
		return Result{ExitCode: exitErr.ExitStatus(), Stdout: stdout, Stderr: stderr}
	}
	return Result{ExitCode: -1, Stdout: stdout, Stderr: stderr, Err: runErr, ErrorKind: types.ErrorTransientRemote}
}
