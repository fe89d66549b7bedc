// Package schema parses the embedded protobuf schemas at runtime so the
// config loader and the gRPC services can work without generated code.
package schema

import (
	"embed"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

//go:embed proto
var protoFS embed.FS

const (
	ConfigFile   = "smartmeter/config/v1/config.proto"
	DataSetsFile = "smartmeter/v1/datasets.proto"

	ConfigMessage   protoreflect.FullName = "smartmeter.config.v1.Config"
	DataSetsService protoreflect.FullName = "smartmeter.v1.DataSets"
)

var (
	parseOnce sync.Once
	files     map[string]protoreflect.FileDescriptor
	parseErr  error

	registerOnce sync.Once
	registerErr  error
)

func parse() {
	parser := protoparse.Parser{
		Accessor: func(filename string) (io.ReadCloser, error) {
			return protoFS.Open(path.Join("proto", filename))
		},
	}

	fds, err := parser.ParseFiles(ConfigFile, DataSetsFile)
	if err != nil {
		parseErr = fmt.Errorf("parse schemas: %w", err)
		return
	}

	files = make(map[string]protoreflect.FileDescriptor, len(fds))
	for _, fd := range fds {
		files[fd.GetName()] = fd.UnwrapFile()
	}
}

// File returns the parsed descriptor of one of the embedded schema files.
func File(name string) (protoreflect.FileDescriptor, error) {
	parseOnce.Do(parse)
	if parseErr != nil {
		return nil, parseErr
	}
	fd, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema file %q", name)
	}
	return fd, nil
}

// Config returns the descriptor of the root config message.
func Config() (protoreflect.MessageDescriptor, error) {
	fd, err := File(ConfigFile)
	if err != nil {
		return nil, err
	}
	md := fd.Messages().ByName(ConfigMessage.Name())
	if md == nil {
		return nil, fmt.Errorf("message %s not found", ConfigMessage)
	}
	return md, nil
}

// RegisterDataSets adds the DataSets schema to the global registry so that
// server reflection can describe the service. Safe to call more than once.
func RegisterDataSets() error {
	registerOnce.Do(func() {
		fd, err := File(DataSetsFile)
		if err != nil {
			registerErr = err
			return
		}
		if _, err := protoregistry.GlobalFiles.FindFileByPath(DataSetsFile); err == nil {
			return
		}
		if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
			registerErr = fmt.Errorf("register %s: %w", DataSetsFile, err)
		}
	})
	return registerErr
}
