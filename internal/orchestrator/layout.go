package orchestrator

import (
	"fmt"
	"path"

	"bluegreen-deployment/internal/models"
)

// layout maps slots to their filesystem locations on the remote host.
//
//	<root>/<slot>/releases/<checksum12>   extracted artifact
//	<root>/<slot>/current                 symlink to the active release
//	<root>/<slot>/current/.checksum       marker for idempotent re-deploys
type layout struct {
	root string
}

func (l layout) slotDir(slot models.Slot) string {
	return path.Join(l.root, string(slot))
}

func (l layout) releaseDir(slot models.Slot, checksum string) string {
	return path.Join(l.slotDir(slot), "releases", checksum[:12])
}

func (l layout) currentLink(slot models.Slot) string {
	return path.Join(l.slotDir(slot), "current")
}

func (l layout) checksumMarker(slot models.Slot) string {
	return path.Join(l.currentLink(slot), ".checksum")
}

func (l layout) uploadPath(a *models.Artifact) string {
	return fmt.Sprintf("/tmp/bluegreen-%s.tar.gz", a.Checksum[:12])
}
