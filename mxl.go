package main

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/cockroachdb/errors"
)

const (
	mxlMimeType      = "application/vnd.recordare.musicxml"
	mxlContainerPath = "META-INF/container.xml"
)

var rootFileExpr = xpath.MustCompile("//rootfiles/rootfile")

// readMXL reads the score out of a compressed MusicXML container. The score
// is the first rootfile named by META-INF/container.xml, or failing that the
// first .xml or .musicxml file in the archive.
func readMXL(filename string) (*Score, error) {
	archive, err := zip.OpenReader(filename)
	if err != nil {
		return nil, errors.Wrap(err, "opening MXL archive")
	}
	defer archive.Close()

	files := make(map[string]*zip.File)
	for _, f := range archive.File {
		files[f.Name] = f
	}

	var scoreFile *zip.File
	if container, ok := files[mxlContainerPath]; ok {
		name, err := containerRootFile(container)
		if err != nil {
			return nil, err
		}
		if scoreFile, ok = files[name]; !ok {
			return nil, errors.Newf("container names %q but the archive has no such file", name)
		}
	}

	if scoreFile == nil {
		for _, f := range archive.File {
			if strings.HasPrefix(f.Name, "META-INF/") {
				continue
			}
			ext := strings.ToLower(path.Ext(f.Name))
			if ext == ".xml" || ext == ".musicxml" {
				scoreFile = f
				break
			}
		}
	}

	if scoreFile == nil {
		return nil, errors.New("MXL archive contains no MusicXML file")
	}

	reader, err := scoreFile.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", scoreFile.Name)
	}
	defer reader.Close()

	return parseScore(reader)
}

func containerRootFile(f *zip.File) (string, error) {
	reader, err := f.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening container")
	}
	defer reader.Close()

	doc, err := xmlquery.Parse(reader)
	if err != nil {
		return "", errors.Wrap(err, "parsing container")
	}

	rootFile := xmlquery.QuerySelector(doc, rootFileExpr)
	if rootFile == nil || rootFile.SelectAttr("full-path") == "" {
		return "", errors.New("container has no rootfile")
	}
	return rootFile.SelectAttr("full-path"), nil
}

// writeMXL writes the score as a compressed MusicXML container holding a
// single score file called name
func writeMXL(score *Score, w io.Writer, name string) error {
	archive := zip.NewWriter(w)

	// mimetype must be the first entry and stored uncompressed
	mimetype, err := archive.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return errors.Wrap(err, "writing mimetype")
	}
	if _, err := io.WriteString(mimetype, mxlMimeType); err != nil {
		return errors.Wrap(err, "writing mimetype")
	}

	container, err := archive.Create(mxlContainerPath)
	if err != nil {
		return errors.Wrap(err, "writing container")
	}
	if _, err := io.WriteString(container, containerDocument(name)); err != nil {
		return errors.Wrap(err, "writing container")
	}

	entry, err := archive.Create(name)
	if err != nil {
		return errors.Wrapf(err, "writing %s", name)
	}
	if _, err := score.WriteTo(entry); err != nil {
		return errors.Wrapf(err, "writing %s", name)
	}

	return errors.Wrap(archive.Close(), "finishing archive")
}

func containerDocument(name string) string {
	root := element(nil, "container")
	rootFiles := element(root, "rootfiles")
	rootFile := element(rootFiles, "rootfile")
	xmlquery.AddAttr(rootFile, "full-path", name)
	xmlquery.AddAttr(rootFile, "media-type", "application/vnd.recordare.musicxml+xml")

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	formatNode(&buf, root, 0, "  ")
	return buf.String()
}
