package ssh

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/tiagocoutinho/qredis/internal/connection"
	"github.com/tiagocoutinho/qredis/internal/logger"

	"golang.org/x/crypto/ssh"
)

// LocalForwarder listens on a loopback port and forwards every accepted
// connection to a remote address through an SSH client.
type LocalForwarder struct {
	LocalAddr string
	Remote    string

	key       string
	listener  net.Listener
	client    *ssh.Client
	closeOnce sync.Once
}

var (
	forwarders   = make(map[string]*LocalForwarder)
	forwardersMu sync.Mutex

	// keepAlive checks that the SSH session still answers requests.
	keepAlive = func(c *ssh.Client) error {
		_, _, err := c.SendRequest("keepalive@openssh.com", true, nil)
		return err
	}
)

// connectSSH establishes an SSH connection
func connectSSH(config connection.SSHConfig) (*ssh.Client, error) {
	authMethods := []ssh.AuthMethod{}

	if config.KeyPath != "" {
		key, err := os.ReadFile(config.KeyPath)
		if err == nil {
			signer, err := ssh.ParsePrivateKey(key)
			if err == nil {
				authMethods = append(authMethods, ssh.PublicKeys(signer))
			}
		}
	}

	if config.Password != "" {
		authMethods = append(authMethods, ssh.Password(config.Password))
	}

	if len(authMethods) == 0 {
		return nil, errors.New("SSH 未配置任何认证方式")
	}

	sshConfig := &ssh.ClientConfig{
		User:            config.User,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // Use strict checking in production!
		Timeout:         5 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	return ssh.Dial("tcp", addr, sshConfig)
}

func forwarderKey(config connection.SSHConfig, remoteHost string, remotePort int) string {
	return fmt.Sprintf("%s@%s:%d->%s:%d", config.User, config.Host, config.Port, remoteHost, remotePort)
}

// GetOrCreateLocalForwarder returns a live forwarder for the given SSH server
// and remote endpoint, creating one when none is cached.
func GetOrCreateLocalForwarder(config connection.SSHConfig, remoteHost string, remotePort int) (*LocalForwarder, error) {
	key := forwarderKey(config, remoteHost, remotePort)

	forwardersMu.Lock()
	cached, ok := forwarders[key]
	forwardersMu.Unlock()
	if ok {
		if cached.alive() {
			return cached, nil
		}
		logger.Warnf("SSH 隧道已断开，重新建立：%s", key)
		_ = cached.Close()
	}

	forwardersMu.Lock()
	defer forwardersMu.Unlock()

	if f, ok := forwarders[key]; ok {
		return f, nil
	}

	client, err := connectSSH(config)
	if err != nil {
		return nil, fmt.Errorf("SSH 连接失败: %w", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("本地端口监听失败: %w", err)
	}

	f := &LocalForwarder{
		LocalAddr: listener.Addr().String(),
		Remote:    fmt.Sprintf("%s:%d", remoteHost, remotePort),
		key:       key,
		listener:  listener,
		client:    client,
	}
	forwarders[key] = f
	go f.serve()

	logger.Infof("SSH 隧道已建立：%s -> %s", f.LocalAddr, f.Remote)
	return f, nil
}

func (f *LocalForwarder) alive() bool {
	return f.client != nil && keepAlive(f.client) == nil
}

func (f *LocalForwarder) serve() {
	for {
		local, err := f.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logger.Error(err, "SSH 隧道接受连接失败：%s", f.LocalAddr)
			}
			f.Close()
			return
		}
		go f.forward(local)
	}
}

func (f *LocalForwarder) forward(local net.Conn) {
	remote, err := f.client.Dial("tcp", f.Remote)
	if err != nil {
		logger.Error(err, "SSH 隧道连接远端失败：%s", f.Remote)
		local.Close()
		// a dead session is dropped so the next connect dials a new one
		if !f.alive() {
			_ = f.Close()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	pipe := func(dst, src net.Conn) {
		defer wg.Done()
		_, _ = io.Copy(dst, src)
		dst.Close()
	}
	go pipe(remote, local)
	go pipe(local, remote)
	wg.Wait()
}

// Close stops the listener, the SSH client and drops the forwarder from the cache
func (f *LocalForwarder) Close() error {
	var err error
	f.closeOnce.Do(func() {
		forwardersMu.Lock()
		if forwarders[f.key] == f {
			delete(forwarders, f.key)
		}
		forwardersMu.Unlock()

		err = f.listener.Close()
		if f.client != nil {
			if cerr := f.client.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}

// CloseAllForwarders closes every cached forwarder (called on shutdown)
func CloseAllForwarders() {
	forwardersMu.Lock()
	all := make([]*LocalForwarder, 0, len(forwarders))
	for _, f := range forwarders {
		all = append(all, f)
	}
	forwardersMu.Unlock()

	for _, f := range all {
		_ = f.Close()
	}
}
