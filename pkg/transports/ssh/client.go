// Package ssh provides the SSH-backed connector and server runtime for
// remote deployment operations.
package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// client wraps one live SSH session plus a lazily created SFTP channel.
type client struct {
	config *Config

	mu     sync.Mutex
	ssh    *ssh.Client
	sftp   *sftp.Client
	closed bool
}

// dial establishes the SSH connection, honoring the context deadline.
func dial(ctx context.Context, config *Config) (*client, error) {
	clientConfig, err := config.BuildSSHClientConfig()
	if err != nil {
		return nil, &TransportError{
			Op:          "connect",
			Err:         err,
			IsTemporary: false,
			IsAuthError: true,
		}
	}

	address := config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		sshClient, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- sshClient
	}()

	select {
	case <-ctx.Done():
		return nil, &TransportError{
			Op:          "connect",
			Err:         ctx.Err(),
			IsTemporary: true,
			IsAuthError: false,
		}
	case err := <-errChan:
		return nil, &TransportError{
			Op:          "connect",
			Err:         err,
			IsTemporary: !isAuthFailure(err),
			IsAuthError: isAuthFailure(err),
		}
	case sshClient := <-connChan:
		log.Info().Str("address", address).Msg("SSH connection established")
		return &client{config: config, ssh: sshClient}, nil
	}
}

// isAuthFailure reports whether a dial error came from authentication
// rather than the network.
func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "unable to authenticate") ||
		strings.Contains(err.Error(), "permission denied")
}

// close tears down the SFTP channel and the SSH connection.
func (c *client) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	log.Debug().Str("host", c.config.Host).Msg("closing SSH connection")

	if c.sftp != nil {
		_ = c.sftp.Close()
		c.sftp = nil
	}
	if c.ssh != nil {
		err := c.ssh.Close()
		c.ssh = nil
		if err != nil {
			return &TransportError{Op: "disconnect", Err: err}
		}
	}
	return nil
}

// run executes a command on the remote host and returns trimmed output.
func (c *client) run(ctx context.Context, cmd string) (stdout string, stderr string, err error) {
	c.mu.Lock()
	sshClient := c.ssh
	c.mu.Unlock()
	if sshClient == nil {
		return "", "", &TransportError{Op: "exec", Err: fmt.Errorf("not connected")}
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return "", "", &TransportError{
			Op:          "exec",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		execErr = ctx.Err()
	case execErr = <-doneChan:
	}

	stdout = strings.TrimSpace(stdoutBuf.String())
	stderr = strings.TrimSpace(stderrBuf.String())

	if execErr != nil {
		if exitErr, ok := execErr.(*ssh.ExitError); ok {
			return stdout, stderr, &TransportError{
				Op:  "exec",
				Err: fmt.Errorf("command exited with code %d: %s", exitErr.ExitStatus(), stderr),
			}
		}
		return stdout, stderr, &TransportError{
			Op:          "exec",
			Err:         execErr,
			IsTemporary: true,
		}
	}

	return stdout, stderr, nil
}

// sftpClient returns the SFTP channel, creating it on first use.
func (c *client) sftpClient() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sftp != nil {
		return c.sftp, nil
	}
	if c.ssh == nil {
		return nil, &TransportError{Op: "sftp-init", Err: fmt.Errorf("not connected")}
	}

	sftpClient, err := sftp.NewClient(c.ssh)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}
	c.sftp = sftpClient
	return sftpClient, nil
}

// upload copies a local file to the remote host via SFTP, creating parent
// directories as needed. Output is reported via the optional sink.
func (c *client) upload(ctx context.Context, localPath, remotePath string, mode os.FileMode, sink io.Writer) error {
	start := time.Now()

	log.Debug().
		Str("local", localPath).
		Str("remote", remotePath).
		Msg("uploading file")

	localFile, err := os.Open(localPath)
	if err != nil {
		return &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to open local file: %w", err),
		}
	}
	defer localFile.Close()

	sftpClient, err := c.sftpClient()
	if err != nil {
		return err
	}

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to create remote directory: %w", err),
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create remote file: %w", err),
			IsTemporary: true,
		}
	}
	defer remoteFile.Close()

	written, err := copyWithContext(ctx, remoteFile, localFile)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("transfer failed after %d bytes: %w", written, err),
			IsTemporary: true,
		}
	}

	if err := sftpClient.Chmod(remotePath, mode); err != nil {
		return &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to set remote mode: %w", err),
		}
	}

	if sink != nil {
		fmt.Fprintf(sink, "uploaded %s (%d bytes in %s)\n", remotePath, written, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// listDir returns the entry names of a remote directory. A missing
// directory is reported as an empty listing.
func (c *client) listDir(remoteDir string) ([]string, error) {
	sftpClient, err := c.sftpClient()
	if err != nil {
		return nil, err
	}

	entries, err := sftpClient.ReadDir(remoteDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &TransportError{
			Op:          "list",
			Err:         fmt.Errorf("failed to read remote directory: %w", err),
			IsTemporary: true,
		}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

// rename moves a remote path, creating the destination parent first.
func (c *client) rename(oldPath, newPath string) error {
	sftpClient, err := c.sftpClient()
	if err != nil {
		return err
	}
	if err := sftpClient.MkdirAll(path.Dir(newPath)); err != nil {
		return &TransportError{
			Op:  "rename",
			Err: fmt.Errorf("failed to create destination directory: %w", err),
		}
	}
	if err := sftpClient.PosixRename(oldPath, newPath); err != nil {
		return &TransportError{
			Op:  "rename",
			Err: fmt.Errorf("failed to move %s: %w", oldPath, err),
		}
	}
	return nil
}

// removeAll deletes a remote path recursively.
func (c *client) removeAll(ctx context.Context, remotePath string) error {
	// sftp has no recursive delete; rm handles files and directories alike.
	_, stderr, err := c.run(ctx, fmt.Sprintf("rm -rf -- %q", remotePath))
	if err != nil {
		return &TransportError{
			Op:  "remove",
			Err: fmt.Errorf("failed to remove %s: %s: %w", remotePath, stderr, err),
		}
	}
	return nil
}

// copyWithContext copies until EOF, aborting if the context is cancelled.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
			if nw < nr {
				return written, io.ErrShortWrite
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
