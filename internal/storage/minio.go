package storage

import (
	"context"
	"io"
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"shardwork/internal/errors"
)

// DefaultPartSize is the multipart chunk used for streamed uploads of unknown size.
const DefaultPartSize = 16 * 1024 * 1024

// MinIO implements FileSystem on an S3-compatible object store using minio-go.
// Paths have the form "<scheme>://bucket/key".
type MinIO struct {
	client   *minio.Client
	scheme   string
	partSize uint64
}

// NewMinIO creates a new object store filesystem serving "s3://" paths
func NewMinIO(cfg Config) (*MinIO, error) {
	// Clean and validate endpoint
	endpoint, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, errors.WrapConfig(err, "invalid endpoint")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating object store client")
	}

	partSize := cfg.PartSize
	if partSize <= 0 {
		partSize = DefaultPartSize
	}

	return &MinIO{client: client, scheme: "s3", partSize: uint64(partSize)}, nil
}

// Scheme returns the path scheme this filesystem serves
func (m *MinIO) Scheme() string {
	return m.scheme
}

// cleanEndpoint removes protocol and path from endpoint URL to get host:port format
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", errors.New("endpoint cannot be empty")
	}

	// If endpoint doesn't have protocol, it must already be in host:port format
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", errors.New("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse endpoint URL")
	}

	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", errors.Newf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}

	return parsedURL.Host, nil
}

func (m *MinIO) parse(p string) (bucket, key string, err error) {
	scheme, segments := Split(p)
	if scheme != m.scheme || len(segments) == 0 || segments[0] == rootSegment {
		return "", "", errors.Configf("not an object path: %q (expected %s://bucket/key)", p, m.scheme)
	}
	return segments[0], strings.Join(segments[1:], "/"), nil
}

func (m *MinIO) path(bucket, key string) string {
	return Join(m.scheme, bucket, key)
}

// Glob lists objects under the literal prefix of pattern and keeps keys matching it.
func (m *MinIO) Glob(ctx context.Context, pattern string) ([]string, error) {
	bucket, keyPattern, err := m.parse(pattern)
	if err != nil {
		return nil, err
	}

	if !HasGlob(keyPattern) {
		ok, err := m.Exists(ctx, pattern)
		if err != nil || !ok {
			return nil, err
		}
		return []string{m.path(bucket, keyPattern)}, nil
	}

	listPrefix := keyPattern[:strings.IndexAny(keyPattern, "*?[")]
	listPrefix = listPrefix[:strings.LastIndex(listPrefix, "/")+1]

	var matches []string
	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    listPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, classify(errors.Wrapf(obj.Err, "listing %s", pattern))
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		ok, err := doublestar.Match(keyPattern, obj.Key)
		if err != nil {
			return nil, errors.WrapConfig(err, "invalid glob pattern")
		}
		if ok {
			matches = append(matches, m.path(bucket, obj.Key))
		}
	}

	sort.Strings(matches)
	return matches, nil
}

// Exists checks object presence with a HEAD request
func (m *MinIO) Exists(ctx context.Context, path string) (bool, error) {
	bucket, key, err := m.parse(path)
	if err != nil {
		return false, err
	}

	_, err = m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return false, nil
	}
	return false, classify(errors.Wrapf(err, "checking %s", path))
}

// MkdirAll is a no-op: object stores have no directories
func (m *MinIO) MkdirAll(context.Context, string) error {
	return nil
}

// Open retrieves an object as a stream
func (m *MinIO) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, key, err := m.parse(path)
	if err != nil {
		return nil, err
	}

	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(errors.Wrapf(err, "opening %s", path))
	}
	return &objectReader{obj: obj, path: path}, nil
}

// Create streams writes into a single PutObject call of unknown size
func (m *MinIO) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	bucket, key, err := m.parse(path)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	w := &objectWriter{pw: pw, path: path, done: make(chan error, 1)}

	go func() {
		_, err := m.client.PutObject(ctx, bucket, key, pr, -1, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
			PartSize:    m.partSize,
		})
		// unblock pending writes if the upload gave up early
		pr.CloseWithError(err)
		w.done <- err
	}()

	return w, nil
}

// objectReader wraps minio.Object so read failures carry a failure kind
type objectReader struct {
	obj  *minio.Object
	path string
}

func (r *objectReader) Read(p []byte) (int, error) {
	n, err := r.obj.Read(p)
	if err != nil && err != io.EOF {
		return n, classify(errors.Wrapf(err, "reading %s", r.path))
	}
	return n, err
}

func (r *objectReader) Close() error {
	return r.obj.Close()
}

type objectWriter struct {
	pw   *io.PipeWriter
	path string
	done chan error
}

func (w *objectWriter) Write(p []byte) (int, error) {
	n, err := w.pw.Write(p)
	if err != nil {
		return n, classify(errors.Wrapf(err, "writing %s", w.path))
	}
	return n, nil
}

func (w *objectWriter) Close() error {
	w.pw.Close()
	if err := <-w.done; err != nil {
		return classify(errors.Wrapf(err, "uploading %s", w.path))
	}
	return nil
}

// classify marks errors that are worth retrying as transient
func classify(err error) error {
	if err == nil || !isRetriableError(err) {
		return err
	}
	return errors.MarkKind(err, errors.Transient)
}

func isRetriableError(err error) bool {
	if resp := minio.ToErrorResponse(errors.UnwrapAll(err)); resp.StatusCode >= 500 {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	// Check for network-related errors
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "temporary") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "dns") ||
		strings.Contains(errStr, "slowdown") ||
		// HTTP 5xx server errors
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout")
}
