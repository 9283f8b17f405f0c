package downloader

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
)

// partition splits size bytes into n contiguous ranges; the last one absorbs
// the remainder. n is reduced when the resource is smaller than n bytes.
func partition(size int64, n int) []ByteRange {
	if size <= 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if int64(n) > size {
		n = int(size)
	}

	partSize := size / int64(n)
	ranges := make([]ByteRange, n)
	for i := 0; i < n; i++ {
		start := int64(i) * partSize
		end := start + partSize - 1
		if i == n-1 {
			end = size - 1
		}
		ranges[i] = ByteRange{Start: start, End: end}
	}
	return ranges
}

func partPath(localPath string, i int) string {
	return fmt.Sprintf("%s.part%d", localPath, i)
}

// fetchSingle streams the whole resource into localPath
func (m *Manager) fetchSingle(ctx context.Context, url, localPath string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}

	fetchErr := m.fetcher.Fetch(ctx, url, f, nil)
	closeErr := f.Close()
	if fetchErr != nil {
		os.Remove(localPath)
		return fetchErr
	}
	if closeErr != nil {
		os.Remove(localPath)
		return fmt.Errorf("failed to close %s: %w", localPath, closeErr)
	}
	return nil
}

// fetchRanged downloads size bytes as parallel byte ranges and joins them in order
func (m *Manager) fetchRanged(ctx context.Context, url, localPath string, size int64) error {
	ranges := partition(size, m.rangeWorkers)
	defer func() {
		for i := range ranges {
			os.Remove(partPath(localPath, i))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i, rng := range ranges {
		i, rng := i, rng
		g.Go(func() error {
			return m.fetchPart(gctx, url, partPath(localPath, i), rng)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	for i := range ranges {
		if err := appendFile(out, partPath(localPath, i)); err != nil {
			out.Close()
			os.Remove(localPath)
			return err
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("failed to close %s: %w", localPath, err)
	}
	return nil
}

func (m *Manager) fetchPart(ctx context.Context, url, path string, rng ByteRange) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create part %s: %w", path, err)
	}
	defer f.Close()

	if err := m.fetcher.Fetch(ctx, url, f, &rng); err != nil {
		return fmt.Errorf("range %d-%d: %w", rng.Start, rng.End, err)
	}
	return nil
}

func appendFile(dst io.Writer, path string) error {
	part, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open part %s: %w", path, err)
	}
	defer part.Close()

	if _, err := io.Copy(dst, part); err != nil {
		return fmt.Errorf("failed to append part %s: %w", path, err)
	}
	return nil
}
