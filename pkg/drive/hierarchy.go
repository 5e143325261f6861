package drive

import (
	"context"
	"fmt"
	"strings"

	"github.com/phuslu/log"
	drive "google.golang.org/api/drive/v3"

	"drivechat/internal/models"
)

type folderInfo struct {
	name    string
	parents []string
	path    string
}

// ListFolders walks the folder tree under rootID breadth-first and
// returns every subfolder found. Folders that fail to list are skipped
// with a warning so one bad branch does not sink the traversal.
func (l *Loader) ListFolders(ctx context.Context, rootID string) ([]*drive.File, error) {
	var all []*drive.File
	queue := []string{rootID}
	seen := map[string]bool{rootID: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		query := fmt.Sprintf("'%s' in parents and mimeType='%s'", current, mimeFolder)
		page, err := l.svc.Files.List().
			Q(query).
			Fields("files(id, name, parents)").
			PageSize(1000).
			Context(ctx).
			Do()
		if err != nil {
			log.Warn().Err(err).Str("folder", current).Msg("failed to list subfolders")
			continue
		}

		for _, folder := range page.Files {
			if seen[folder.Id] {
				continue
			}
			seen[folder.Id] = true
			all = append(all, folder)
			queue = append(queue, folder.Id)
		}
	}
	return all, nil
}

// folderPaths maps folder IDs to their path relative to the root. The
// root folder is named "root" and excluded from its children's paths.
func folderPaths(folders []*drive.File, rootID string) map[string]folderInfo {
	paths := map[string]folderInfo{
		rootID: {name: "root", path: "root"},
	}
	for _, folder := range folders {
		paths[folder.Id] = folderInfo{name: folder.Name, parents: folder.Parents}
	}

	for id, info := range paths {
		if id == rootID {
			continue
		}
		parts := []string{info.name}
		parents := info.parents
		for len(parents) > 0 {
			parent, ok := paths[parents[0]]
			if !ok {
				break
			}
			if parent.name != "root" {
				parts = append([]string{parent.name}, parts...)
			}
			parents = parent.parents
		}
		info.path = strings.Join(parts, "/")
		paths[id] = info
	}
	return paths
}

func hierarchyMeta(folderID string, paths map[string]folderInfo) map[string]interface{} {
	info, ok := paths[folderID]
	if !ok {
		return map[string]interface{}{
			"category":        "unknown",
			"subcategory":     nil,
			"hierarchy_path":  "unknown",
			"hierarchy_level": 0,
		}
	}

	parts := strings.Split(info.path, "/")
	meta := map[string]interface{}{
		"category":        parts[0],
		"subcategory":     nil,
		"hierarchy_path":  info.path,
		"hierarchy_level": len(parts),
	}
	if len(parts) > 1 {
		meta["subcategory"] = parts[1]
	}
	return meta
}

// LoadWithHierarchy loads documents from rootID and all of its
// subfolders, attaching category and hierarchy metadata derived from
// the folder each document lives in.
func (l *Loader) LoadWithHierarchy(ctx context.Context, rootID string, maxDocs int) ([]models.Document, error) {
	log.Info().Str("folder", rootID).Msg("loading folder structure from Google Drive")

	folders, err := l.ListFolders(ctx, rootID)
	if err != nil {
		return nil, err
	}
	paths := folderPaths(folders, rootID)

	folderIDs := make([]string, 0, len(folders)+1)
	folderIDs = append(folderIDs, rootID)
	for _, folder := range folders {
		folderIDs = append(folderIDs, folder.Id)
	}

	log.Info().Int("folders", len(folderIDs)).Msg("processing folders")

	var documents []models.Document
folders:
	for _, folderID := range folderIDs {
		docs, err := l.LoadDocuments(ctx, folderID, 0)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			for k, v := range hierarchyMeta(folderID, paths) {
				doc.Metadata[k] = v
			}
			doc.Metadata["file_name"] = doc.Name
			doc.Metadata["folder_id"] = folderID
			documents = append(documents, doc)

			if maxDocs > 0 && len(documents) >= maxDocs {
				break folders
			}
		}
	}

	log.Info().Int("documents", len(documents)).Msg("loaded documents from Google Drive")
	return documents, nil
}
