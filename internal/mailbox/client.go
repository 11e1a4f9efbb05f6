package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"cctracker/internal/domain"
)

const inbox = "INBOX"

type Options struct {
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// session is the subset of an IMAP connection the client drives.
type session interface {
	Login(username, password string) error
	Select(mailbox string) error
	Noop() error
	SearchUnseen() ([]imap.UID, error)
	FetchSection(uid imap.UID, part imap.PartSpecifier) ([]byte, error)
	StoreSeen(uid imap.UID) error
	Close() error
}

type dialFunc func(ctx context.Context, srv domain.ServerConfig, timeout time.Duration) (session, error)

// Client is an IMAP Mailbox. Every remote call goes through the retry policy.
// It is not safe for concurrent use.
type Client struct {
	account domain.Account
	opts    Options
	dial    dialFunc
	sleep   func(ctx context.Context, d time.Duration) error
	sess    session
	logger  *slog.Logger
}

func NewClient(account domain.Account, opts Options, logger *slog.Logger) *Client {
	return &Client{
		account: account,
		opts:    opts,
		dial:    dialIMAP,
		sleep:   sleepCtx,
		logger:  logger.With("account", account.Address),
	}
}

// Connect makes sure a logged-in session with INBOX selected exists.
// A live session is probed with NOOP and silently replaced if the probe fails.
func (c *Client) Connect(ctx context.Context) error {
	if c.sess != nil {
		err := c.sess.Noop()
		if err == nil {
			return nil
		}
		c.logger.Debug("session probe failed, reconnecting", "error", err)
		c.drop()
	}

	_, err := Do(ctx, c.policy(false), func() (struct{}, error) {
		return struct{}{}, c.open(ctx)
	})
	return err
}

func (c *Client) ListUnseen(ctx context.Context) ([]string, error) {
	uids, err := Do(ctx, c.policy(true), func() ([]imap.UID, error) {
		s, err := c.session()
		if err != nil {
			return nil, err
		}
		return s.SearchUnseen()
	})
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}

	ids := make([]string, len(uids))
	for i, uid := range uids {
		ids[i] = strconv.FormatUint(uint64(uid), 10)
	}
	return ids, nil
}

// Fetch reads the header and text of a message without setting \Seen.
func (c *Client) Fetch(ctx context.Context, id string) (*domain.Message, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}

	header, err := c.fetchSection(ctx, uid, imap.PartSpecifierHeader)
	if err != nil {
		return nil, fmt.Errorf("fetch header of %s: %w", id, err)
	}
	text, err := c.fetchSection(ctx, uid, imap.PartSpecifierText)
	if err != nil {
		return nil, fmt.Errorf("fetch text of %s: %w", id, err)
	}

	msg, err := parseMessage(header, text)
	if err != nil {
		return nil, fmt.Errorf("parse message %s: %w", id, err)
	}
	msg.ExternalID = id
	return msg, nil
}

// MarkRead sets \Seen. A server refusal is reported as false, not as an error.
func (c *Client) MarkRead(ctx context.Context, id string) (bool, error) {
	uid, err := parseUID(id)
	if err != nil {
		return false, err
	}

	_, err = Do(ctx, c.policy(true), func() (struct{}, error) {
		s, err := c.session()
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.StoreSeen(uid)
	})
	if err != nil {
		var imapErr *imap.Error
		if errors.As(err, &imapErr) &&
			(imapErr.Type == imap.StatusResponseTypeNo || imapErr.Type == imap.StatusResponseTypeBad) {
			c.logger.Warn("server refused to mark message read", "id", id, "error", err)
			return false, nil
		}
		return false, fmt.Errorf("mark %s read: %w", id, err)
	}
	return true, nil
}

// Disconnect logs out and closes the session. Failures are logged only.
func (c *Client) Disconnect() {
	c.drop()
}

func (c *Client) fetchSection(ctx context.Context, uid imap.UID, part imap.PartSpecifier) ([]byte, error) {
	return Do(ctx, c.policy(true), func() ([]byte, error) {
		s, err := c.session()
		if err != nil {
			return nil, err
		}
		return s.FetchSection(uid, part)
	})
}

func (c *Client) policy(reconnect bool) Policy {
	p := Policy{
		Attempts: c.opts.RetryAttempts,
		Delay:    c.opts.RetryDelay,
		Classify: Classify,
		Sleep:    c.sleep,
	}
	if reconnect {
		p.Reconnect = c.open
	}
	return p
}

func (c *Client) session() (session, error) {
	if c.sess == nil {
		return nil, ErrNotConnected
	}
	return c.sess, nil
}

// open replaces the current session with a fresh one.
func (c *Client) open(ctx context.Context) error {
	c.drop()

	srv := c.account.Inbound
	sess, err := c.dial(ctx, srv, c.opts.Timeout)
	if err != nil {
		return fmt.Errorf("dial %s:%d: %w", srv.Host, srv.Port, err)
	}

	if err := sess.Login(c.account.Address, c.account.Password); err != nil {
		_ = sess.Close()
		var imapErr *imap.Error
		if errors.As(err, &imapErr) && imapErr.Type == imap.StatusResponseTypeNo {
			return &AuthError{Account: c.account.Address, Err: err}
		}
		return fmt.Errorf("login: %w", err)
	}

	if err := sess.Select(inbox); err != nil {
		_ = sess.Close()
		return fmt.Errorf("select %s: %w", inbox, err)
	}

	c.sess = sess
	c.logger.Debug("mailbox connected", "host", srv.Host)
	return nil
}

func (c *Client) drop() {
	if c.sess == nil {
		return
	}
	if err := c.sess.Close(); err != nil {
		c.logger.Debug("close session", "error", err)
	}
	c.sess = nil
}

func parseUID(id string) (imap.UID, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q: %w", id, err)
	}
	return imap.UID(uid), nil
}

// imapSession drives an imapclient connection. A command still pending after
// timeout closes the connection, which fails the command; idle sessions are
// left alone.
type imapSession struct {
	c       *imapclient.Client
	conn    net.Conn
	timeout time.Duration
}

func dialIMAP(ctx context.Context, srv domain.ServerConfig, timeout time.Duration) (session, error) {
	addr := net.JoinHostPort(srv.Host, strconv.Itoa(srv.Port))
	dialer := &net.Dialer{Timeout: timeout}

	var conn net.Conn
	var err error
	if srv.TLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: srv.Host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	return newIMAPSession(conn, timeout), nil
}

func newIMAPSession(conn net.Conn, timeout time.Duration) *imapSession {
	return &imapSession{c: imapclient.New(conn, nil), conn: conn, timeout: timeout}
}

func (s *imapSession) do(fn func() error) error {
	if s.timeout <= 0 {
		return fn()
	}

	var expired atomic.Bool
	timer := time.AfterFunc(s.timeout, func() {
		expired.Store(true)
		_ = s.conn.Close()
	})
	err := fn()
	timer.Stop()

	if expired.Load() {
		return fmt.Errorf("imap command exceeded %s: %w", s.timeout, os.ErrDeadlineExceeded)
	}
	return err
}

func (s *imapSession) Login(username, password string) error {
	return s.do(func() error {
		return s.c.Login(username, password).Wait()
	})
}

func (s *imapSession) Select(mailbox string) error {
	return s.do(func() error {
		_, err := s.c.Select(mailbox, nil).Wait()
		return err
	})
}

func (s *imapSession) Noop() error {
	return s.do(func() error {
		return s.c.Noop().Wait()
	})
}

func (s *imapSession) SearchUnseen() ([]imap.UID, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	var uids []imap.UID
	err := s.do(func() error {
		data, err := s.c.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return err
		}
		uids = data.AllUIDs()
		return nil
	})
	return uids, err
}

func (s *imapSession) FetchSection(uid imap.UID, part imap.PartSpecifier) ([]byte, error) {
	section := &imap.FetchItemBodySection{Specifier: part, Peek: true}
	opts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	var msgs []*imapclient.FetchMessageBuffer
	err := s.do(func() error {
		var err error
		msgs, err = s.c.Fetch(imap.UIDSetNum(uid), opts).Collect()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}
	return msgs[0].FindBodySection(section), nil
}

func (s *imapSession) StoreSeen(uid imap.UID) error {
	flags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}
	return s.do(func() error {
		return s.c.Store(imap.UIDSetNum(uid), flags, nil).Close()
	})
}

func (s *imapSession) Close() error {
	_ = s.do(func() error {
		return s.c.Logout().Wait()
	})
	return s.c.Close()
}
