package intake

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/model"
)

// defaultFTPTimeout bounds the lockbox dial and control-channel reads.
const defaultFTPTimeout = 30 * time.Second

// ftpTarget is a parsed lockbox URL.
type ftpTarget struct {
	host string
	path string
	user string
	pass string
}

// parseFTPURL extracts host (with port), path, and credentials from an FTP
// URL. Login is anonymous when the URL carries no userinfo.
func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "intake: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("intake: expected ftp scheme, got %q", u.Scheme)
	}

	host := u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	if u.Path == "" {
		return ftpTarget{}, eris.New("intake: empty path in ftp url")
	}

	target := ftpTarget{host: host, path: u.Path, user: "anonymous", pass: "anonymous@"}
	if u.User != nil {
		target.user = u.User.Username()
		target.pass, _ = u.User.Password()
	}

	return target, nil
}

// FromFTP downloads a scan drop from an FTP lockbox. The URL path may name a
// single scan file or a directory whose image and PDF entries are all
// fetched over one connection. A single failed transfer is skipped with a
// warning. Entries come back in name order.
func FromFTP(ctx context.Context, ftpURL string, timeout time.Duration) ([]model.CheckImage, error) {
	if timeout <= 0 {
		timeout = defaultFTPTimeout
	}
	target, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("intake: connecting to lockbox",
		zap.String("host", target.host),
		zap.String("path", target.path))

	conn, err := ftp.Dial(target.host, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "intake: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(target.user, target.pass); err != nil {
		return nil, eris.Wrap(err, "intake: ftp login")
	}

	if isScanFile(target.path) {
		return fetchFTPFile(conn, target.path)
	}

	entries, err := conn.List(target.path)
	if err != nil {
		return nil, eris.Wrapf(err, "intake: ftp list %s", target.path)
	}

	var imgs []model.CheckImage
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile || !isScanFile(entry.Name) {
			continue
		}
		fileImgs, err := fetchFTPFile(conn, path.Join(target.path, entry.Name))
		if err != nil {
			zap.L().Warn("intake: skipping lockbox entry",
				zap.String("name", entry.Name),
				zap.Error(err))
			continue
		}
		imgs = append(imgs, fileImgs...)
	}

	sort.Slice(imgs, func(i, j int) bool { return imgs[i].Name < imgs[j].Name })

	zap.L().Info("intake: downloaded lockbox drop",
		zap.String("host", target.host),
		zap.Int("images", len(imgs)))
	return imgs, nil
}

// fetchFTPFile retrieves one remote scan and expands PDFs in place.
func fetchFTPFile(conn *ftp.ServerConn, remotePath string) ([]model.CheckImage, error) {
	resp, err := conn.Retr(remotePath)
	if err != nil {
		return nil, eris.Wrapf(err, "intake: ftp retrieve %s", remotePath)
	}
	data, err := io.ReadAll(resp)
	closeErr := resp.Close()
	if err != nil {
		return nil, eris.Wrapf(err, "intake: ftp read %s", remotePath)
	}
	if closeErr != nil {
		return nil, eris.Wrapf(closeErr, "intake: ftp close %s", remotePath)
	}

	name := path.Base(remotePath)
	if strings.EqualFold(path.Ext(name), ".pdf") {
		return expandPDFBytes(name, data)
	}
	return []model.CheckImage{{
		Name:      name,
		MediaType: mediaTypeFor(path.Ext(name)),
		Data:      data,
	}}, nil
}

// expandPDFBytes writes PDF bytes to a scratch file so pdfcpu can extract
// the embedded scans.
func expandPDFBytes(name string, data []byte) ([]model.CheckImage, error) {
	tmp, err := os.CreateTemp("", "check-recon-*.pdf")
	if err != nil {
		return nil, eris.Wrap(err, "intake: create pdf scratch file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, eris.Wrapf(err, "intake: write pdf scratch for %s", name)
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "intake: close pdf scratch file")
	}

	return extractPDFImages(tmp.Name(), name)
}
