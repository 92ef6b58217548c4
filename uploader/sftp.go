package uploader

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPStore uploads over SFTP. The "bucket" is a base directory on the
// remote host; object names become paths beneath it.
type SFTPStore struct {
	host       string
	port       string
	user       string
	password   string
	privateKey string

	sshClient  *ssh.Client
	sftpClient *sftp.Client
}

// NewSFTPStore returns an uninitialized SFTP store. accessInfo must
// contain host and user, plus password or privateKey (base64 or raw PEM).
// Port defaults to 22.
func NewSFTPStore(accessInfo map[string]string) *SFTPStore {
	port := accessInfo["port"]
	if port == "" {
		port = "22"
	}
	return &SFTPStore{
		host:       accessInfo["host"],
		port:       port,
		user:       accessInfo["user"],
		password:   accessInfo["password"],
		privateKey: accessInfo["privateKey"],
	}
}

func (s *SFTPStore) Init(ctx context.Context) error {
	if s.host == "" || s.user == "" {
		return fmt.Errorf("missing required SFTP settings: host, user")
	}

	var auths []ssh.AuthMethod
	if s.privateKey != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(s.privateKey)
		if err != nil {
			keyBytes = []byte(s.privateKey)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	} else if s.password != "" {
		auths = append(auths, ssh.Password(s.password))
	} else {
		return fmt.Errorf("no auth method provided; set password or privateKey")
	}

	config := &ssh.ClientConfig{
		User:            s.user,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	addr := net.JoinHostPort(s.host, s.port)
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial tcp %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	s.sshClient = ssh.NewClient(clientConn, chans, reqs)

	s.sftpClient, err = sftp.NewClient(s.sshClient)
	if err != nil {
		s.sshClient.Close()
		return fmt.Errorf("create sftp client: %w", err)
	}
	return nil
}

func (s *SFTPStore) VerifyBucket(ctx context.Context, bucket string) error {
	if s.sftpClient == nil {
		return fmt.Errorf("SFTP client not initialized")
	}
	info, err := s.sftpClient.Stat(bucket)
	if err != nil {
		return fmt.Errorf("stat remote dir %s: %w", bucket, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("remote path %s is not a directory", bucket)
	}
	return nil
}

func (s *SFTPStore) Upload(ctx context.Context, bucket, objectName, localPath string) error {
	if s.sftpClient == nil {
		return fmt.Errorf("SFTP client not initialized")
	}

	remotePath := path.Join(bucket, objectName)
	if err := s.mkdirAll(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("ensure remote dir %s: %w", path.Dir(remotePath), err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	dst, err := s.sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy to remote file %s: %w", remotePath, err)
	}
	return nil
}

func (s *SFTPStore) Close() error {
	if s.sftpClient != nil {
		s.sftpClient.Close()
	}
	if s.sshClient != nil {
		return s.sshClient.Close()
	}
	return nil
}

// mkdirAll mimics os.MkdirAll for an SFTP server by creating each segment
// of the path. SFTP paths are posix-like regardless of the local OS.
func (s *SFTPStore) mkdirAll(dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	parts := strings.Split(dir, "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}

	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := s.sftpClient.Stat(cur); err != nil {
			if os.IsNotExist(err) {
				if err := s.sftpClient.Mkdir(cur); err != nil {
					return fmt.Errorf("mkdir %s: %w", cur, err)
				}
			} else {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
		}
	}
	return nil
}
