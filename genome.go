// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/ngs-toolkit/chipseq/interval"
)

// resolveExternal returns path as given if it exists, is absolute or
// is in Keep, otherwise the same name under {data_dir}/external.
func (c *ChIPSeq) resolveExternal(path string) string {
	if path == "" || filepath.IsAbs(path) || fileExists(path) || collectionInPathRe.MatchString(path) {
		return path
	}
	return filepath.Join(c.externalDir(), path)
}

func (c *ChIPSeq) externalDir() string {
	return filepath.Join(c.analysis.DataDir(), "external")
}

// FetchBlacklist returns the path of the blacklist for the
// analysis's organism and genome under {data_dir}/external,
// downloading it from Consensus.BlacklistURL if it is not there yet.
func (c *ChIPSeq) FetchBlacklist(ctx context.Context) (string, error) {
	organism, genome := c.analysis.Organism(), c.analysis.Genome()
	if organism == "" || genome == "" {
		return "", fmt.Errorf("%w: blacklist file was not provided and cannot get one without analysis having organism and genome set", ErrNoBlacklist)
	}
	path := filepath.Join(c.externalDir(), organism+"."+genome+".blacklist.bed")
	if fileExists(path) {
		return path, nil
	}
	url := expand(c.cfg.Consensus.BlacklistURL, c.analysis, genome)
	c.logger.WithField("url", url).Info("blacklist file not provided, downloading")
	err := c.download(ctx, url, path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoBlacklist, err)
	}
	return path, nil
}

// download saves the content at url to path, decompressing it if
// url ends in ".gz".
func (c *ChIPSeq) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	var rdr io.Reader = resp.Body
	if strings.HasSuffix(url, ".gz") {
		zr, err := pgzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("GET %s: %w", url, err)
		}
		defer zr.Close()
		rdr = zr
	}
	err = os.MkdirAll(filepath.Dir(path), 0777)
	if err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(filepath.Dir(path), "."+filepath.Base(path)+".")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, rdr)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("GET %s: %w", url, err)
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// chromSizes returns the chromosome lengths of genome, from
// Consensus.ChromSizes, {data_dir}/external/{genome}.chrom.sizes, or
// Consensus.ChromSizesURL, whichever is found first.
func (c *ChIPSeq) chromSizes(ctx context.Context, genome string) (interval.ChromSizes, error) {
	path := c.cfg.Consensus.ChromSizes
	if path == "" {
		path = filepath.Join(c.externalDir(), genome+".chrom.sizes")
		if !fileExists(path) {
			url := expand(c.cfg.Consensus.ChromSizesURL, c.analysis, genome)
			c.logger.WithField("url", url).Infof("downloading chromosome sizes of %s", genome)
			err := c.download(ctx, url, path)
			if err != nil {
				return nil, err
			}
		}
	}
	f, err := zopen(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sizes, err := interval.ReadChromSizes(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sizes, nil
}
