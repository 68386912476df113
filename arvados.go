// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/arvadosclient"
	"git.arvados.org/arvados.git/sdk/go/keepclient"
	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

// arvadosSubmitter queues a peak-calling command as an Arvados
// container request. Inputs in Keep collections are mounted
// read-only, and everything the command writes under its output
// directory is saved as the request's output collection.
type arvadosSubmitter struct {
	Client      *arvados.Client
	ProjectUUID string
	Image       string
	VCPUs       int
	RAM         int64
	Priority    int
	logger      log.FieldLogger
}

func newArvadosSubmitter(cfg JobsConfig, logger log.FieldLogger) *arvadosSubmitter {
	return &arvadosSubmitter{
		Client:      arvados.NewClientFromEnv(),
		ProjectUUID: cfg.ProjectUUID,
		Image:       cfg.Image,
		VCPUs:       cfg.CPUs,
		RAM:         int64(cfg.MemoryMB) << 20,
		Priority:    cfg.Priority,
		logger:      logger,
	}
}

func (s *arvadosSubmitter) Submit(ctx context.Context, pc PeakCommand) error {
	if s.ProjectUUID == "" {
		return errors.New("cannot submit arvados container request: jobs.project_uuid not provided")
	}
	mounts := map[string]map[string]interface{}{
		"/mnt/output": {
			"kind":     "collection",
			"writable": true,
		},
	}
	steps := make([][]string, len(pc.Steps))
	for i, argv := range pc.Steps {
		steps[i] = make([]string, len(argv))
		for j, arg := range argv {
			switch {
			case pc.Dir != "" && (arg == pc.Dir || strings.HasPrefix(arg, pc.Dir+"/")):
				arg = "/mnt/output" + arg[len(pc.Dir):]
			case strings.Contains(arg, "/"):
				// Inputs must be in Keep.
				if err := translatePaths(mounts, &arg); err != nil {
					return fmt.Errorf("%s: %w", pc.jobName(), err)
				}
			}
			steps[i][j] = arg
		}
	}
	remote := pc
	remote.Steps = steps
	script := "set -e\n" + remote.Script()

	priority := s.Priority
	if priority < 1 {
		priority = 500
	}
	rc := arvados.RuntimeConstraints{
		VCPUs:        s.VCPUs,
		RAM:          s.RAM,
		KeepCacheRAM: (1 << 26) * 2 * int64(s.VCPUs),
	}
	var cr arvados.ContainerRequest
	err := s.Client.RequestAndDecodeContext(ctx, &cr, "POST", "arvados/v1/container_requests", nil, map[string]interface{}{
		"container_request": map[string]interface{}{
			"owner_uuid":          s.ProjectUUID,
			"name":                "chipseq " + pc.jobName(),
			"container_image":     s.Image,
			"command":             []string{"sh", "-c", script},
			"mounts":              mounts,
			"use_existing":        true,
			"output_path":         "/mnt/output",
			"output_name":         "chipseq peaks " + pc.jobName(),
			"runtime_constraints": rc,
			"priority":            priority,
			"state":               arvados.ContainerRequestStateCommitted,
			"scheduling_parameters": arvados.SchedulingParameters{
				Partitions: []string{},
			},
			"container_count_max": 1,
		},
	})
	if err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{"comparison": pc.Comparison, "caller": pc.Caller}).Infof("container request UUID: %s", cr.UUID)
	return nil
}

var collectionInPathRe = regexp.MustCompile(`^(.*/)?([0-9a-f]{32}\+[0-9]+|[0-9a-z]{5}-[0-9a-z]{5}-[0-9a-z]{15})(/.*)?$`)

// translatePaths rewrites each path that refers to a Keep collection
// to the place the collection is mounted in the container, adding the
// mount if needed.
func translatePaths(mounts map[string]map[string]interface{}, paths ...*string) error {
	for _, path := range paths {
		if *path == "" || *path == "-" {
			continue
		}
		m := collectionInPathRe.FindStringSubmatch(*path)
		if m == nil {
			return fmt.Errorf("cannot find uuid in path: %q", *path)
		}
		collID := m[2]
		if _, ok := mounts["/mnt/"+collID]; !ok {
			mnt := map[string]interface{}{
				"kind": "collection",
			}
			if len(collID) == 27 {
				mnt["uuid"] = collID
			} else {
				mnt["portable_data_hash"] = collID
			}
			mounts["/mnt/"+collID] = mnt
		}
		*path = "/mnt/" + collID + m[3]
	}
	return nil
}

// zopen returns a reader for the given file, using the arvados API
// instead of arv-mount/fuse where applicable, and transparently
// decompressing the input if fnm ends with ".gz".
func zopen(fnm string) (io.ReadCloser, error) {
	f, err := open(fnm)
	if err != nil || !strings.HasSuffix(fnm, ".gz") {
		return f, err
	}
	rdr, err := pgzip.NewReader(bufio.NewReaderSize(f, 4*1024*1024))
	if err != nil {
		f.Close()
		return nil, err
	}
	return gzipr{rdr, f}, nil
}

// gzipr wraps a ReadCloser and a Closer, presenting a single Close()
// method that closes both wrapped objects.
type gzipr struct {
	io.ReadCloser
	io.Closer
}

func (gr gzipr) Close() error {
	e1 := gr.ReadCloser.Close()
	e2 := gr.Closer.Close()
	if e1 != nil {
		return e1
	}
	return e2
}

var (
	keepClient *keepclient.KeepClient
	siteFS     arvados.CustomFileSystem
	siteFSMtx  sync.Mutex
)

type file interface {
	io.ReadCloser
	io.Seeker
	Readdir(n int) ([]os.FileInfo, error)
}

// open opens a local file, or a file in a Keep collection if
// ARVADOS_API_HOST is set and fnm names a collection.
func open(fnm string) (file, error) {
	if os.Getenv("ARVADOS_API_HOST") == "" {
		return os.Open(fnm)
	}
	m := collectionInPathRe.FindStringSubmatch(fnm)
	if m == nil {
		return os.Open(fnm)
	}
	collectionUUID := m[2]
	collectionPath := m[3]

	siteFSMtx.Lock()
	defer siteFSMtx.Unlock()
	if siteFS == nil {
		client := arvados.NewClientFromEnv()
		ac, err := arvadosclient.New(client)
		if err != nil {
			return nil, err
		}
		ac.Client = arvados.DefaultSecureClient
		keepClient = keepclient.New(ac)
		// Don't use keepclient's default short timeouts.
		keepClient.HTTPClient = arvados.DefaultSecureClient
		keepClient.BlockCache = &keepclient.BlockCache{MaxBlocks: 4}
		siteFS = client.SiteFileSystem(keepClient)
	} else {
		keepClient.BlockCache.MaxBlocks += 2
	}

	f, err := siteFS.Open("by_id/" + collectionUUID + collectionPath)
	if err != nil {
		return nil, err
	}
	return &reduceCacheOnClose{file: f}, nil
}

type reduceCacheOnClose struct {
	file
	once sync.Once
}

func (rc *reduceCacheOnClose) Close() error {
	rc.once.Do(func() { keepClient.BlockCache.MaxBlocks -= 2 })
	return rc.file.Close()
}
