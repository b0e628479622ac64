package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/textproto"
	"path"
	"standings-sync/internal/assert"
	"standings-sync/internal/retry"
	"standings-sync/internal/telemetry"
	"time"

	"github.com/jlaffaye/ftp"
)

const (
	report_ftp_connect = "ftp.connect"
	report_ftp_quit    = "ftp.quit"
)

type FTPConfig struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Password string `json:"password"`
	// ExplicitTLS upgrades the control connection with AUTH TLS.
	ExplicitTLS bool `json:"explicit_tls"`
}

// Addr returns host:port, defaulting to port 21.
func (c FTPConfig) Addr() string {
	_, _, err := net.SplitHostPort(c.Host)
	if err == nil {
		return c.Host
	}
	return net.JoinHostPort(c.Host, "21")
}

// FTPStore talks to an ftp server over a single lazily opened connection.
// Any failed operation drops the connection so that a retry starts from a
// fresh login.
type FTPStore struct {
	cfg     FTPConfig
	timeout time.Duration
	tel     telemetry.API

	conn *ftp.ServerConn
	home string
}

func NewFTPStore(cfg FTPConfig, timeout time.Duration, tel telemetry.API) *FTPStore {
	assert.NotEmptyStr(cfg.Host, "ftp host")
	assert.NotNil(tel, "tel")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FTPStore{
		cfg:     cfg,
		timeout: timeout,
		tel:     telemetry.NewScopedAPI("remote", tel),
	}
}

func (s *FTPStore) connect(ctx context.Context) (*ftp.ServerConn, error) {
	if s.conn != nil {
		return s.conn, nil
	}

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(s.timeout),
	}
	if s.cfg.ExplicitTLS {
		host, _, _ := net.SplitHostPort(s.cfg.Addr())
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: host}))
	}

	conn, err := ftp.Dial(s.cfg.Addr(), opts...)
	if err != nil {
		s.tel.ReportWarning(report_ftp_connect, err, s.cfg.Addr())
		return nil, fmt.Errorf("dial %s: %w", s.cfg.Addr(), err)
	}
	err = conn.Login(s.cfg.Username, s.cfg.Password)
	if err != nil {
		conn.Quit()
		s.tel.ReportWarning(report_ftp_connect, err, s.cfg.Addr())
		err = fmt.Errorf("login to %s as %s: %w", s.cfg.Addr(), s.cfg.Username, err)
		var reply *textproto.Error
		if errors.As(err, &reply) && reply.Code == ftp.StatusNotLoggedIn {
			// rejected credentials stay rejected
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	home, err := conn.CurrentDir()
	if err != nil {
		conn.Quit()
		return nil, fmt.Errorf("read login directory: %w", err)
	}

	s.conn = conn
	s.home = home
	return conn, nil
}

// drop closes the current connection after a failure.
func (s *FTPStore) drop() {
	if s.conn == nil {
		return
	}
	err := s.conn.Quit()
	if err != nil {
		s.tel.ReportDebug("quit after failure", "err", err)
	}
	s.conn = nil
}

// do runs fn with a connection whose working directory is the login directory.
// A cached connection that fails to return home is replaced once, servers
// close idle control connections between scheduled runs.
func (s *FTPStore) do(ctx context.Context, fn func(conn *ftp.ServerConn) error) error {
	cached := s.conn != nil
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	err = conn.ChangeDir(s.home)
	if err != nil && cached {
		s.tel.ReportDebug("reconnecting stale connection", "err", err)
		s.drop()
		conn, err = s.connect(ctx)
		if err != nil {
			return err
		}
		err = conn.ChangeDir(s.home)
	}
	if err == nil {
		err = fn(conn)
	}
	if err != nil {
		s.drop()
		return err
	}
	return nil
}

// EnsureDir enters every component of dir, creating it when it cannot be entered.
func (s *FTPStore) EnsureDir(ctx context.Context, dir string) error {
	return s.do(ctx, func(conn *ftp.ServerConn) error {
		for _, part := range splitDir(dir) {
			err := conn.ChangeDir(part)
			if err == nil {
				continue
			}
			mkErr := conn.MakeDir(part)
			if mkErr != nil {
				return fmt.Errorf("create directory %s in %s: %w", part, dir, errors.Join(err, mkErr))
			}
			err = conn.ChangeDir(part)
			if err != nil {
				return fmt.Errorf("enter directory %s in %s: %w", part, dir, err)
			}
		}
		return nil
	})
}

func (s *FTPStore) Upload(ctx context.Context, dir, name string, data []byte) error {
	target := path.Join(append(splitDir(dir), name)...)
	return s.do(ctx, func(conn *ftp.ServerConn) error {
		err := conn.Stor(target, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("STOR %s: %w", target, err)
		}
		return nil
	})
}

func (s *FTPStore) Download(ctx context.Context, dir, name string) ([]byte, error) {
	target := path.Join(append(splitDir(dir), name)...)
	var out []byte
	err := s.do(ctx, func(conn *ftp.ServerConn) error {
		res, err := conn.Retr(target)
		var reply *textproto.Error
		if errors.As(err, &reply) && reply.Code == ftp.StatusFileUnavailable {
			return fmt.Errorf("RETR %s: %w: %w", target, fs.ErrNotExist, err)
		}
		if err != nil {
			return fmt.Errorf("RETR %s: %w", target, err)
		}
		defer res.Close()
		out, err = io.ReadAll(res)
		return err
	})
	return out, err
}

func (s *FTPStore) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Quit()
	s.conn = nil
	if err != nil {
		s.tel.ReportWarning(report_ftp_quit, err)
	}
	return err
}
