// utils/remote_images.go
package utils

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"rolewarden/common"
)

// Image states accepted by ApplyImages.
const (
	ImagesPresent = "present"
	ImagesLatest  = "latest"
	ImagesAbsent  = "absent"
)

// dockerClient lazily builds (and caches) the Docker API client for the
// target. Reused across images within a run, released by Close.
func (c *RemoteClient) dockerClient(ctx context.Context) (*client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.docker != nil {
		return c.docker, nil
	}
	cli, done, err := NewDockerClient(ctx, c.target)
	if err != nil {
		return nil, err
	}
	c.docker = cli
	c.dockerDone = done
	return cli, nil
}

// ApplyImages converges the listed image refs on the host. "present" pulls
// what is missing, "latest" re-pulls everything and reports a change when an
// image ID moved, "absent" removes what exists. The first image error aborts
// with the changes made so far.
func (c *RemoteClient) ApplyImages(ctx context.Context, images []string, state string) Result {
	if len(images) == 0 {
		return Result{}
	}

	cli, err := c.dockerClient(ctx)
	if err != nil {
		return Failure(err.Error())
	}

	changed := false
	for _, ref := range images {
		var res Result
		switch state {
		case ImagesPresent:
			res = pullIfMissing(ctx, cli, ref)
		case ImagesLatest:
			res = pullAlways(ctx, cli, ref)
		case ImagesAbsent:
			res = removeImage(ctx, cli, ref)
		default:
			return Result{}
		}
		if res.Changed {
			changed = true
		}
		if res.Failed {
			res.Changed = changed
			return res
		}
	}
	return Normalize(Raw{Changed: changed})
}

func pullIfMissing(ctx context.Context, cli *client.Client, ref string) Result {
	_, _, err := cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		common.DebugLog("images: %s already present", ref)
		return Result{}
	}
	if !client.IsErrNotFound(err) {
		return Failure(fmt.Sprintf("inspect image %s: %v", ref, err))
	}
	if err := pullImage(ctx, cli, ref); err != nil {
		return Failure(fmt.Sprintf("pull image %s: %v", ref, err))
	}
	return Result{Changed: true}
}

func pullAlways(ctx context.Context, cli *client.Client, ref string) Result {
	before := ""
	if ins, _, err := cli.ImageInspectWithRaw(ctx, ref); err == nil {
		before = ins.ID
	} else if !client.IsErrNotFound(err) {
		return Failure(fmt.Sprintf("inspect image %s: %v", ref, err))
	}

	if err := pullImage(ctx, cli, ref); err != nil {
		return Failure(fmt.Sprintf("pull image %s: %v", ref, err))
	}

	ins, _, err := cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return Failure(fmt.Sprintf("inspect image %s after pull: %v", ref, err))
	}
	if ins.ID != before {
		common.InfoLog("images: %s updated (%s -> %s)", ref, shortID(before), shortID(ins.ID))
		return Result{Changed: true}
	}
	return Result{}
}

func removeImage(ctx context.Context, cli *client.Client, ref string) Result {
	_, _, err := cli.ImageInspectWithRaw(ctx, ref)
	if client.IsErrNotFound(err) {
		return Result{}
	}
	if err != nil {
		return Failure(fmt.Sprintf("inspect image %s: %v", ref, err))
	}
	if _, err := cli.ImageRemove(ctx, ref, image.RemoveOptions{PruneChildren: true}); err != nil {
		return Failure(fmt.Sprintf("remove image %s: %v", ref, err))
	}
	common.InfoLog("images: removed %s", ref)
	return Result{Changed: true}
}

// pullImage drains the pull progress stream; the pull only completes once
// the reader hits EOF.
func pullImage(ctx context.Context, cli *client.Client, ref string) error {
	rc, err := cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return err
	}
	common.DebugLog("images: pulled %s", ref)
	return nil
}

func shortID(id string) string {
	if id == "" {
		return "none"
	}
	if len(id) > 19 {
		return id[:19]
	}
	return id
}
