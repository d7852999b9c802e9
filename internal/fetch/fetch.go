// Package fetch mirrors ISIMIP input files from an FTP server into a local
// input root.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/isimipextract/internal/log"
	"github.com/lox/isimipextract/internal/metrics"
)

const dialTimeout = 30 * time.Second

// RemoteFile is a regular file in the remote listing.
type RemoteFile struct {
	Name string
	Size uint64
}

// conn is the subset of *ftp.ServerConn used by the fetcher.
type conn interface {
	List(dir string) ([]*ftp.Entry, error)
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

type ftpConn struct {
	*ftp.ServerConn
}

func (c ftpConn) Retr(path string) (io.ReadCloser, error) {
	return c.ServerConn.Retr(path)
}

type Client struct {
	host     string
	user     string
	password string

	dial       func(ctx context.Context) (conn, error)
	newBackOff func() backoff.BackOff
}

func NewClient(host, user, password string) *Client {
	if user == "" {
		user, password = "anonymous", "anonymous"
	}
	c := &Client{host: host, user: user, password: password}
	c.dial = c.dialFTP
	c.newBackOff = func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = 2 * time.Minute
		return bo
	}
	return c
}

func (c *Client) dialFTP(ctx context.Context) (conn, error) {
	sc, err := ftp.Dial(c.host, ftp.DialWithTimeout(dialTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	if err := sc.Login(c.user, c.password); err != nil {
		sc.Quit()
		return nil, backoff.Permanent(fmt.Errorf("ftp login: %w", err))
	}
	return ftpConn{sc}, nil
}

// Summary counts what a mirror pass did.
type Summary struct {
	Listed     int
	Downloaded int
	Skipped    int
	Failed     int
}

// Mirror downloads every .nc file in remoteDir whose name contains one of the
// tokens and which is missing from dest or has a different size. A failed
// download is logged and counted; the pass continues with the next file.
func (c *Client) Mirror(ctx context.Context, remoteDir, dest string, tokens []string) (Summary, error) {
	var sum Summary

	var cn conn
	err := backoff.Retry(func() error {
		var err error
		cn, err = c.dial(ctx)
		return err
	}, backoff.WithContext(c.newBackOff(), ctx))
	if err != nil {
		return sum, err
	}
	defer cn.Quit()

	files, err := list(cn, remoteDir)
	if err != nil {
		return sum, err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return sum, fmt.Errorf("create dest: %w", err)
	}

	for _, f := range files {
		if !matchesToken(f.Name, tokens) {
			continue
		}
		sum.Listed++

		if err := ctx.Err(); err != nil {
			return sum, err
		}

		local := filepath.Join(dest, f.Name)
		need, err := needsDownload(local, f.Size)
		if err != nil {
			return sum, err
		}
		if !need {
			sum.Skipped++
			metrics.FilesFetched.WithLabelValues("skipped").Inc()
			log.Debugw("fetch: up to date", "file", f.Name)
			continue
		}

		start := time.Now()
		if err := c.download(ctx, cn, path.Join(remoteDir, f.Name), local); err != nil {
			sum.Failed++
			metrics.FilesFetched.WithLabelValues("failed").Inc()
			log.Warnw("fetch: download failed", "file", f.Name, "error", err)
			continue
		}
		sum.Downloaded++
		metrics.FilesFetched.WithLabelValues("downloaded").Inc()
		log.Infow("fetch: downloaded", "file", f.Name, "bytes", f.Size, "duration", time.Since(start))
	}
	return sum, nil
}

func list(cn conn, dir string) ([]RemoteFile, error) {
	entries, err := cn.List(dir)
	if err != nil {
		return nil, fmt.Errorf("ftp list %s: %w", dir, err)
	}
	var files []RemoteFile
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		files = append(files, RemoteFile{Name: path.Base(e.Name), Size: e.Size})
	}
	return files, nil
}

func (c *Client) download(ctx context.Context, cn conn, remote, local string) error {
	operation := func() error {
		resp, err := cn.Retr(remote)
		if err != nil {
			if isUnavailable(err) {
				return backoff.Permanent(fmt.Errorf("ftp retr %s: %w", remote, err))
			}
			return fmt.Errorf("ftp retr %s: %w", remote, err)
		}
		defer resp.Close()
		return writeFile(local, resp)
	}
	return backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx))
}

// isUnavailable reports a 550 reply: the file is missing or not readable, so
// retrying cannot help.
func isUnavailable(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}

func writeFile(local string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(local), ".fetch-*.nc")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("copy %s: %w", filepath.Base(local), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", filepath.Base(local), err)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", filepath.Base(local), err)
	}
	return nil
}

// matchesToken reports whether name is a NetCDF file containing any token.
// An empty token list matches every NetCDF file.
func matchesToken(name string, tokens []string) bool {
	if !strings.HasSuffix(name, ".nc") {
		return false
	}
	if len(tokens) == 0 {
		return true
	}
	for _, t := range tokens {
		if strings.Contains(name, t) {
			return true
		}
	}
	return false
}

func needsDownload(local string, size uint64) (bool, error) {
	fi, err := os.Stat(local)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", local, err)
	}
	return uint64(fi.Size()) != size, nil
}
