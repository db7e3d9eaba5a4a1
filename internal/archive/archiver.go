// Package archive supplements the Durable Sink: it periodically rotates
// the sink's flushed line-log segments into local gzip files, then
// (when configured) uploads the segment to S3 and deletes the local copy.
// The segment's comma-separated lines are compressed as they are; they are
// not converted to JSON, even though the archive name ends in .jsonl.gz.
// Structurally this is the teacher's archive.Archiver (gzip batch write,
// oldest-first size-capped rotation) re-pointed from "read trades out of
// Mongo" to "rotate the file sink's own segment" and, newly, wired to the
// S3 dependency the teacher's own go.mod already carried but never used.
package archive

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
)

// Rotator is the subset of *sink.FileSink the archiver depends on, kept as
// an interface so tests can supply a fake segment source.
type Rotator interface {
	Age() time.Duration
	RotateTo(archivedPath string) error
}

// Archiver rotates old FileSink segments to gzip files under dir, deletes
// the oldest archives once total size exceeds maxBytes, and optionally
// uploads each segment to S3, removing the local copy once the upload
// succeeds.
type Archiver struct {
	rotator  Rotator
	dir      string
	maxBytes int64
	interval time.Duration
	maxAge   time.Duration

	s3Client *s3.Client
	s3Bucket string
	s3Prefix string
}

// New creates an Archiver. maxGB/intervalHours/afterHours mirror the
// teacher's archive.New signature. When s3Bucket is non-empty, New loads
// the default AWS config (env/shared credentials) and constructs an S3
// client for segment upload; s3Bucket empty disables upload entirely,
// matching the teacher's own "opt-in: only active when S3Bucket is set"
// comment on its config fields.
func New(ctx context.Context, rotator Rotator, dir string, maxGB, intervalHours, afterHours int, s3Bucket, s3Region, s3Prefix string) (*Archiver, error) {
	a := &Archiver{
		rotator:  rotator,
		dir:      dir,
		maxBytes: int64(maxGB) * 1 << 30,
		interval: time.Duration(intervalHours) * time.Hour,
		maxAge:   time.Duration(afterHours) * time.Hour,
		s3Bucket: s3Bucket,
		s3Prefix: s3Prefix,
	}

	if s3Bucket != "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s3Region))
		if err != nil {
			return nil, fmt.Errorf("archive: load aws config: %w", err)
		}
		a.s3Client = s3.NewFromConfig(cfg)
	}

	return a, nil
}

// Run starts the periodic archive loop. Blocks until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	log.Printf("archiver: dir=%s max=%dGB interval=%v age=%v s3bucket=%q",
		a.dir, a.maxBytes>>30, a.interval, a.maxAge, a.s3Bucket)

	a.cycle(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

func (a *Archiver) cycle(ctx context.Context) {
	if a.rotator.Age() < a.maxAge {
		return
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		log.Printf("archiver: mkdir: %v", err)
		return
	}

	rawPath := filepath.Join(a.dir, fmt.Sprintf("segment-%s.raw", time.Now().UTC().Format("20060102T150405")))
	if err := a.rotator.RotateTo(rawPath); err != nil {
		log.Printf("archiver: rotate: %v", err)
		return
	}

	gzPath, err := gzipSegment(rawPath)
	if err != nil {
		log.Printf("archiver: gzip %s: %v", rawPath, err)
		return
	}
	os.Remove(rawPath)

	log.Printf("archiver: rotated segment %s (%s)", gzPath, humanizeFileSize(gzPath))

	if a.s3Client != nil {
		if err := a.upload(ctx, gzPath); err != nil {
			log.Printf("archiver: s3 upload %s: %v", gzPath, err)
		} else {
			os.Remove(gzPath)
			log.Printf("archiver: uploaded and removed local copy of %s", filepath.Base(gzPath))
		}
	}

	a.rotateBySize()
}

func gzipSegment(rawPath string) (string, error) {
	gzPath := rawPath[:len(rawPath)-len(".raw")] + ".jsonl.gz"

	in, err := os.Open(rawPath)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer in.Close()

	out, err := os.Create(gzPath)
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := bufio.NewReader(in).WriteTo(gz); err != nil {
		gz.Close()
		return "", fmt.Errorf("write: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return gzPath, nil
}

func (a *Archiver) upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	key := a.s3Prefix + "/" + filepath.Base(path)
	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.s3Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// rotateBySize deletes the oldest local archive files until total size is
// under maxBytes, identical in spirit to the teacher's archive.rotate.
func (a *Archiver) rotateBySize() {
	type entry struct {
		path string
		size int64
	}

	var files []entry
	var total int64

	filepath.Walk(a.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files = append(files, entry{path: path, size: info.Size()})
		total += info.Size()
		return nil
	})

	if total <= a.maxBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	for _, f := range files {
		if total <= a.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			log.Printf("archiver: remove %s: %v", f.path, err)
			continue
		}
		total -= f.size
		log.Printf("archiver: rotated out %s (%d bytes)", f.path, f.size)
	}
}

func humanizeFileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown size"
	}
	return humanize.Bytes(uint64(info.Size()))
}
