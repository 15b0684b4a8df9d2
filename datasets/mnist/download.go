package mnist

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const baseURL = "https://ossci-datasets.s3.amazonaws.com/mnist/"

// fetchMissing downloads the named dataset files into dir, all four in
// flight at once. Files are written atomically via a temp name so a
// failed download never leaves a partial file behind.
func fetchMissing(dir string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create dataset directory")
	}

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	spin.Suffix = " downloading MNIST"
	spin.Start()
	defer spin.Stop()

	g, ctx := errgroup.WithContext(context.Background())
	for _, name := range names {
		name := name
		g.Go(func() error {
			return fetchOne(ctx, dir, name)
		})
	}
	return g.Wait()
}

func fetchOne(ctx context.Context, dir, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+name, nil)
	if err != nil {
		return errors.Wrapf(err, "request '%s'", name)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "download '%s'", name)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("download '%s': %s", name, resp.Status)
	}

	tmp, err := os.CreateTemp(dir, name+".part*")
	if err != nil {
		return errors.Wrapf(err, "create '%s'", name)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "write '%s'", name)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "close '%s'", name)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "store '%s'", name)
	}
	return nil
}
