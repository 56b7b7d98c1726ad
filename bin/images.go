package main

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ewfLib "github.com/aarsakian/EWF_Reader/ewf"
	extent "github.com/aarsakian/VMDK_Reader/extent"
	errors "github.com/pkg/errors"
)

// A raw image or block device.
type rawImage struct {
	fd   *os.File
	size int64
}

func (self *rawImage) ReadAt(buf []byte, offset int64) (int, error) {
	return self.fd.ReadAt(buf, offset)
}

func (self *rawImage) Size() int64 {
	return self.size
}

// Evidence containers only expose whole buffer reads, so reads are
// clipped to the media size here.
type retriever func(offset, length int64) []byte

type containerImage struct {
	retrieve retriever
	size     int64
}

func (self *containerImage) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 || offset >= self.size {
		return 0, io.EOF
	}

	length := int64(len(buf))
	if offset+length > self.size {
		length = self.size - offset
	}

	n := copy(buf, self.retrieve(offset, length))
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (self *containerImage) Size() int64 {
	return self.size
}

// An EWF set is image.E01, image.E02 ... next to each other.
func findEvidenceFiles(filename string) []string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	matches, _ := filepath.Glob(base + ".[Ee][0-9][0-9]")
	if len(matches) == 0 {
		return []string{filename}
	}
	sort.Strings(matches)
	return matches
}

func openEWF(filename string) (*containerImage, error) {
	var ewf_image ewfLib.EWF_Image
	ewf_image.ParseEvidence(findEvidenceFiles(filename))

	size := int64(ewf_image.Chuncksize) * int64(ewf_image.NofChunks)
	if size == 0 {
		return nil, errors.Errorf("%v: no EWF media found", filename)
	}

	return &containerImage{
		retrieve: ewf_image.RetrieveData,
		size:     size,
	}, nil
}

func openVMDK(filename string) (*containerImage, error) {
	extents := extent.ProcessExtents(filename)
	size := extents.GetHDSize()
	if size == 0 {
		return nil, errors.Errorf("%v: no VMDK extents found", filename)
	}

	dir := filepath.Dir(filename)
	return &containerImage{
		retrieve: func(offset, length int64) []byte {
			return extents.RetrieveData(dir, offset, length)
		},
		size: size,
	}, nil
}

func openImage(fd *os.File) (io.ReaderAt, error) {
	switch strings.ToLower(filepath.Ext(fd.Name())) {
	case ".e01":
		return openEWF(fd.Name())

	case ".vmdk":
		return openVMDK(fd.Name())
	}

	size, err := deviceSize(fd)
	if err != nil {
		return nil, err
	}
	return &rawImage{fd: fd, size: size}, nil
}
