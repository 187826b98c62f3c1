package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

// BucketService is the read side of the document bucket.
type BucketService interface {
	Bucket() string
	Prefix() string
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
	SignedURL(key string) (string, error)
	Close() error
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	cfg           ObjectStorageConfig
	emulatorHost  string
	http          *http.Client
	now           func() time.Time
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
	storageCfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	return NewBucketServiceWithConfig(log, storageCfg)
}

func NewBucketServiceWithConfig(log *logger.Logger, storageCfg ObjectStorageConfig) (BucketService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateObjectStorageConfig(storageCfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	if !storageCfg.Enabled() {
		return nil, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorMissingBucket, Mode: string(storageCfg.Mode)}
	}
	if storageCfg.SignedURLTTL <= 0 {
		storageCfg.SignedURLTTL = defaultSignedURLTTL
	}
	serviceLog := log.With("service", "BucketService")

	bs := &bucketService{
		log:          serviceLog,
		cfg:          storageCfg,
		emulatorHost: strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/"),
		http:         &http.Client{Timeout: 2 * time.Minute},
		now:          time.Now,
	}
	if !storageCfg.IsEmulatorMode() {
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
		stClient, err := storage.NewClient(context.Background(), opts...)
		if err != nil {
			return nil, apierr.Upstream("create storage client", err)
		}
		bs.storageClient = stClient
	}

	serviceLog.Info(
		"Object storage initialized",
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"emulator_host", storageCfg.EmulatorHost,
		"bucket", storageCfg.Bucket,
		"prefix", storageCfg.Prefix,
	)
	return bs, nil
}

func (bs *bucketService) Bucket() string { return bs.cfg.Bucket }

func (bs *bucketService) Prefix() string { return bs.cfg.Prefix }

func (bs *bucketService) Close() error {
	if bs == nil || bs.storageClient == nil {
		return nil
	}
	return bs.storageClient.Close()
}

func (bs *bucketService) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if bs.cfg.IsEmulatorMode() {
		return bs.listEmulatorKeys(ctx, prefix)
	}
	it := bs.storageClient.Bucket(bs.cfg.Bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, apierr.Upstream("list bucket objects", err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

// listEmulatorKeys follows nextPageToken through the JSON API listing.
func (bs *bucketService) listEmulatorKeys(ctx context.Context, prefix string) ([]string, error) {
	out := []string{}
	pageToken := ""
	for {
		q := url.Values{}
		if prefix != "" {
			q.Set("prefix", prefix)
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		u := fmt.Sprintf("%s/storage/v1/b/%s/o", bs.emulatorHost, url.PathEscape(bs.cfg.Bucket))
		if enc := q.Encode(); enc != "" {
			u += "?" + enc
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("build emulator list request: %w", err)
		}
		resp, err := bs.http.Do(req)
		if err != nil {
			return nil, apierr.Upstream("emulator list", err)
		}
		var page struct {
			Items []struct {
				Name string `json:"name"`
			} `json:"items"`
			NextPageToken string `json:"nextPageToken"`
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			return nil, apierr.Upstream("emulator list", fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body))))
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		_ = resp.Body.Close()
		if err != nil {
			return nil, apierr.Upstream("emulator list", fmt.Errorf("decode: %w", err))
		}
		for _, item := range page.Items {
			if item.Name == "" || strings.HasSuffix(item.Name, "/") {
				continue
			}
			out = append(out, item.Name)
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

// readCloserWithCancel ties the download context to the reader so the
// caller can keep reading after DownloadFile returns.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (bs *bucketService) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	if bs.cfg.IsEmulatorMode() {
		req, err := http.NewRequestWithContext(ctx2, http.MethodGet, bs.emulatorObjectMediaURL(key), nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed creating emulator download request: %w", err)
		}
		resp, err := bs.http.Do(req)
		if err != nil {
			cancel()
			return nil, apierr.Upstream("emulator download", err)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			cancel()
			return nil, apierr.Upstream("emulator download", fmt.Errorf("key=%s status=%d body=%s", key, resp.StatusCode, strings.TrimSpace(string(body))))
		}
		return &readCloserWithCancel{ReadCloser: resp.Body, cancel: cancel}, nil
	}

	r, err := bs.storageClient.Bucket(bs.cfg.Bucket).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, apierr.Upstream("open GCS reader", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

// SignedURL returns a temporary GET URL for key. The emulator does not sign,
// so the plain media URL is returned there.
func (bs *bucketService) SignedURL(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("object key required")
	}
	if bs.cfg.IsEmulatorMode() {
		return bs.emulatorObjectMediaURL(key), nil
	}
	u, err := bs.storageClient.Bucket(bs.cfg.Bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Scheme:  storage.SigningSchemeV4,
		Expires: bs.now().Add(bs.cfg.SignedURLTTL),
	})
	if err != nil {
		return "", apierr.Upstream("sign url", err)
	}
	return u, nil
}

func (bs *bucketService) emulatorObjectMediaURL(key string) string {
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		bs.emulatorHost,
		url.PathEscape(bs.cfg.Bucket),
		url.PathEscape(key),
	)
}
