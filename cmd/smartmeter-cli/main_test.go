package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/smartmeter/internal/dataset"
	"github.com/joshp123/smartmeter/internal/server"
)

func startDaemon(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data_0_0.json"), []byte(`{"eNow":300}`), 0o644))

	srv, err := server.NewGRPCServer("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, dataset.RegisterDataSetsService(srv.Server, dataset.NewStore(dir, false), nil, log.New(io.Discard)))
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Server.Stop)
	return srv.Listener.Addr().String(), dir
}

func runCLI(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGet(t *testing.T) {
	addr, dir := startDaemon(t)

	out, err := runCLI("--addr", addr, "get", "data_0_0")
	require.NoError(t, err)
	require.Equal(t, "{\"eNow\":300}\n", out)

	out, err = runCLI("--addr", addr, "get", "data_9_9")
	require.Error(t, err)
	require.Contains(t, out, "The file "+dir+"/data_9_9.json does not exist")
}

func TestServicesMethodsHealth(t *testing.T) {
	addr, _ := startDaemon(t)

	out, err := runCLI("--addr", addr, "services")
	require.NoError(t, err)
	require.Contains(t, out, "smartmeter.v1.DataSets")
	require.Contains(t, out, "grpc.health.v1.Health")

	out, err = runCLI("--addr", addr, "methods", "smartmeter.v1.DataSets")
	require.NoError(t, err)
	require.Contains(t, out, "smartmeter.v1.DataSets.GetDataSet")

	out, err = runCLI("--addr", addr, "health")
	require.NoError(t, err)
	require.Equal(t, "SERVING\n", out)
}

func TestCall(t *testing.T) {
	addr, dir := startDaemon(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.json"), []byte(`{"x":1}`), 0o644))

	out, err := runCLI("--addr", addr, "call", "smartmeter.v1.DataSets/GetDataSet", "--data", `"alpha"`)
	require.NoError(t, err)
	require.Contains(t, out, `"eyJ4IjoxfQ=="`)

	_, err = runCLI("--addr", addr, "call", "smartmeter.v1.DataSets/GetDataSet", "--data", `"missing"`)
	require.Error(t, err)
}

func TestParse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telegram.txt")
	require.NoError(t, os.WriteFile(path, []byte("/ISk5\\2MT382-1000\r\n\r\n"+
		"0-0:96.14.0(0001)\r\n"+
		"1-0:1.8.1(00123.456*kWh)\r\n"+
		"1-0:1.8.2(00234.567*kWh)\r\n"+
		"1-0:1.7.0(0001.23*kW)\r\n"+
		"!\r\n"), 0o644))

	out, err := runCLI("parse", path)
	require.NoError(t, err)
	require.Contains(t, out, `"power_w": 1230`)
	require.Contains(t, out, `"import_peak_wh": 234567`)

	out, err = runCLI("parse", "--table", path)
	require.NoError(t, err)
	require.Contains(t, out, "tariff")

	_, err = runCLI("parse", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestDialable(t *testing.T) {
	require.Equal(t, "localhost:9000", dialable("0.0.0.0:9000"))
	require.Equal(t, "localhost:9000", dialable(":9000"))
	require.Equal(t, "meter.lan:9000", dialable("meter.lan:9000"))
	require.Equal(t, "[::1]:9000", dialable("[::1]:9000"))
}

func TestResolveAddrFromEnv(t *testing.T) {
	t.Setenv("SMARTMETER_GRPC_ADDR", "meter.lan:9001")
	require.Equal(t, "meter.lan:9001", resolveAddr())

	t.Setenv("SMARTMETER_GRPC_ADDR", "")
	path := filepath.Join(t.TempDir(), "config.pbtxt")
	require.NoError(t, os.WriteFile(path, []byte(`schema_version: 1 core { grpc_addr: "0.0.0.0:9100" }`), 0o644))
	t.Setenv("SMARTMETER_CONFIG", path)
	require.Equal(t, "localhost:9100", resolveAddr())
}
