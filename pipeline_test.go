package ku

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mgenware/ku-natives/gate"
	"github.com/mgenware/ku-natives/inspect"
	"github.com/mgenware/ku-natives/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureArgsLinux(t *testing.T) {
	e := newTestEnv(t, OSLinux)
	task := NewLibraryBuildTask(e.cfg, BuiltinLibraries()[0])

	args, err := e.bc.ConfigureArgs(task)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-DCMAKE_BUILD_TYPE=Release",
		"-DCMAKE_INSTALL_PREFIX=" + task.InstallDir(),
		"-DBUILD_SHARED_LIBS=OFF",
		"-DCMAKE_POSITION_INDEPENDENT_CODE=ON",
		"-DCMAKE_C_COMPILER=gcc",
		"-DCMAKE_CXX_COMPILER=g++",
		"-DCMAKE_IGNORE_PREFIX_PATH=/usr/local",
		"-DCMAKE_DISABLE_FIND_PACKAGE_WebP=ON",
		"-DBUILD_STATIC_LIBS=ON",
		"-G", "Unix Makefiles",
		task.OutputSrc,
	}, args)
}

func TestConfigureArgsDarwin(t *testing.T) {
	e := newTestEnv(t, OSDarwin)
	task := NewLibraryBuildTask(e.cfg, BuiltinLibraries()[0])

	args, err := e.bc.ConfigureArgs(task)
	require.NoError(t, err)
	assert.Contains(t, args, "-DCMAKE_OSX_ARCHITECTURES=arm64;x86_64")
	assert.Contains(t, args, "-DCMAKE_OSX_DEPLOYMENT_TARGET=11.0")
	assert.Contains(t, args, "-DCMAKE_IGNORE_PREFIX_PATH=/opt/homebrew;/usr/local")
	for _, a := range args {
		assert.NotContains(t, a, "DISABLE_FIND_PACKAGE", "package disabling is Linux only")
		assert.NotContains(t, a, "COMPILER")
	}
	assert.Equal(t, task.OutputSrc, args[len(args)-1])
}

func TestConfigureArgsUnsupported(t *testing.T) {
	e := newTestEnv(t, OSLinux)
	e.bc.Platform.OS = "windows"
	_, err := e.bc.ConfigureArgs(NewLibraryBuildTask(e.cfg, BuiltinLibraries()[0]))
	assert.ErrorIs(t, err, ErrUnsupportedOS)
}

func TestRunTaskLinux(t *testing.T) {
	e := newTestEnv(t, OSLinux)
	task := e.openjp2Task(t)

	res := RunTask(context.Background(), e.bc, task)
	require.NoError(t, res.Err)

	// Headers come from include/openjpeg-2.5, flattened.
	assert.FileExists(t, filepath.Join(e.cfg.OutputDir, "include", "libopenjp2", "openjpeg.h"))
	assert.FileExists(t, filepath.Join(e.cfg.OutputDir, "include", "libopenjp2", "opj_config.h"))
	assert.NoDirExists(t, filepath.Join(e.cfg.OutputDir, "include", "libopenjp2", "openjpeg-2.5"))
	libFile := filepath.Join(e.cfg.OutputDir, "lib", "libopenjp2", "libopenjp2.a")
	assert.Equal(t, libFile, res.Artifacts.StaticLibFile)
	assert.FileExists(t, libFile)
	assert.FileExists(t, filepath.Join(e.cfg.OutputDir, "src", "libopenjp2", "CMakeLists.txt"))

	// The generated link line no longer references webp.
	link, err := os.ReadFile(filepath.Join(task.BuildDir(), linkTxt))
	require.NoError(t, err)
	assert.NotContains(t, strings.Fields(string(link)), "-lwebp")
	assert.Contains(t, string(link), "-lz -lpng -lm")
	cache, err := os.ReadFile(filepath.Join(task.BuildDir(), "CMakeCache.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(cache), "WEBP_LIBRARIES:STRING=\n")
	require.NotNil(t, res.Patch)
	assert.Equal(t, 2, res.Patch.Removed)

	cmds := e.fake.Commands()
	require.Len(t, cmds, 3)
	assert.True(t, strings.HasPrefix(cmds[0], "cmake -DCMAKE_BUILD_TYPE=Release"))
	assert.Equal(t, "cmake --build . -j 4 --config Release", cmds[1])
	assert.Equal(t, "cmake --install .", cmds[2])
	for _, c := range e.fake.Calls() {
		assert.Equal(t, task.BuildDir(), c.WorkingDir)
	}

	info, err := ReadBuildInfo(task.OutputLib)
	require.NoError(t, err)
	assert.Equal(t, "libopenjp2", info.Library)
	assert.Equal(t, OSLinux, info.OS)
	assert.Equal(t, "libopenjp2.tar.gz", info.Archive)
	assert.Equal(t, res.Source.Digest, info.ArchiveDigest)
	assert.Equal(t, []string{"openjpeg.h", "opj_config.h"}, info.Headers)
	assert.Len(t, info.ArtifactDigest, 64)
}

func TestRunTaskDarwinSkipsPatch(t *testing.T) {
	e := newTestEnv(t, OSDarwin)
	task := e.openjp2Task(t)
	// On macOS the link line is left alone; pretend the linker is fine with it.
	e.fake.Handler = func(opt *runner.SpawnOpt) (string, error) {
		if opt.Args[0] == "--build" {
			return "", nil
		}
		return e.fc.handle(opt)
	}

	res := RunTask(context.Background(), e.bc, task)
	require.NoError(t, res.Err)
	assert.Nil(t, res.Patch)
	link, err := os.ReadFile(filepath.Join(task.BuildDir(), linkTxt))
	require.NoError(t, err)
	assert.Contains(t, string(link), "-lwebp")
}

func TestRunTaskDarwinVerifyFails(t *testing.T) {
	e := newTestEnv(t, OSDarwin)
	task := e.openjp2Task(t)
	e.fake.Handler = func(opt *runner.SpawnOpt) (string, error) {
		if opt.Args[0] == "--build" {
			return "", nil
		}
		return e.fc.handle(opt)
	}
	e.bc.Inspector = &stubInspector{archs: []string{"arm64"}, minOS: MinMacosVersion}

	res := RunTask(context.Background(), e.bc, task)
	var se *StepError
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, StepVerify, se.Op)
	assert.ErrorIs(t, res.Err, inspect.ErrMismatch)
	// Artifacts were still copied.
	assert.FileExists(t, res.Artifacts.StaticLibFile)
}

func TestRunTaskVerifyDisabled(t *testing.T) {
	e := newTestEnv(t, OSDarwin)
	task := e.openjp2Task(t)
	e.fake.Handler = func(opt *runner.SpawnOpt) (string, error) {
		if opt.Args[0] == "--build" {
			return "", nil
		}
		return e.fc.handle(opt)
	}
	e.bc.Inspector = &stubInspector{archs: []string{"arm64"}, minOS: "10.9"}
	e.cfg.Verify = false

	res := RunTask(context.Background(), e.bc, task)
	assert.NoError(t, res.Err)
}

func TestRunTaskConfigureFailure(t *testing.T) {
	e := newTestEnv(t, OSLinux)
	task := e.openjp2Task(t)
	e.fc.configureErr = &runner.ExitError{Name: "cmake", Code: 7}

	res := RunTask(context.Background(), e.bc, task)
	var se *StepError
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, StepConfigure, se.Op)
	assert.Equal(t, "libopenjp2", se.Library)
	code, ok := runner.ExitCode(res.Err)
	assert.True(t, ok)
	assert.Equal(t, 7, code)
	// Nothing after configure ran.
	assert.Len(t, e.fake.Calls(), 1)
	assert.NoFileExists(t, filepath.Join(task.OutputLib, "libopenjp2.a"))
}

func TestRunTaskBuildFailsWithoutPatch(t *testing.T) {
	e := newTestEnv(t, OSLinux)
	def := BuiltinLibraries()[0]
	def.PatchRules = nil
	writeSourceArchive(t, filepath.Join(e.cfg.ArchivesDir, "libopenjp2.tar.gz"), "openjpeg-2.5.2")
	task := NewLibraryBuildTask(e.cfg, def)

	res := RunTask(context.Background(), e.bc, task)
	var se *StepError
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, StepBuild, se.Op)
	code, _ := runner.ExitCode(res.Err)
	assert.Equal(t, 2, code)
}

func TestRunTaskArtifactMissing(t *testing.T) {
	e := newTestEnv(t, OSLinux)
	task := e.openjp2Task(t)
	e.fc.skipInstall = true

	res := RunTask(context.Background(), e.bc, task)
	var se *StepError
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, StepCopy, se.Op)
	assert.ErrorIs(t, res.Err, ErrArtifactMissing)
}

func TestRunTaskStaticLibInLib64(t *testing.T) {
	e := newTestEnv(t, OSLinux)
	task := e.openjp2Task(t)
	e.fake.Handler = func(opt *runner.SpawnOpt) (string, error) {
		out, err := e.fc.handle(opt)
		if err != nil || opt.Args[0] != "--install" {
			return out, err
		}
		lib := filepath.Join(task.InstallDir(), "lib")
		lib64 := filepath.Join(task.InstallDir(), "lib64")
		return "", os.Rename(lib, lib64)
	}

	res := RunTask(context.Background(), e.bc, task)
	require.NoError(t, res.Err)
	assert.FileExists(t, filepath.Join(task.OutputLib, "libopenjp2.a"))
}

func TestRunAllIsolatesFailures(t *testing.T) {
	e := newTestEnv(t, OSLinux)
	writeSourceArchive(t, filepath.Join(e.cfg.ArchivesDir, "libopenjp2.tar.gz"), "openjpeg-2.5.2")
	missing := &LibraryDef{Name: "libmissing", StaticLib: "libmissing.a"}
	e.cfg.Libraries = []*LibraryDef{missing, BuiltinLibraries()[0]}

	// Leftovers of an earlier build of the missing library must survive.
	stale := filepath.Join(GetIncludeDir(e.cfg.OutputDir, "libmissing"), "old.h")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	var before, after []string
	tasks := NewLibraryBuildTasks(e.cfg, e.cfg.AllLibraries())
	results, err := RunAll(context.Background(), e.bc, tasks, &RunAllOptions{
		BeforeEachFn: func(t *LibraryBuildTask) { before = append(before, t.Name) },
		AfterEachFn:  func(t *LibraryBuildTask, _ *TaskResult) { after = append(after, t.Name) },
	})

	require.Len(t, results, 2)
	assert.ErrorIs(t, err, ErrArchiveMissing)
	assert.ErrorIs(t, results[0].Err, ErrArchiveMissing)
	assert.NoError(t, results[1].Err)
	assert.FileExists(t, stale)
	assert.FileExists(t, filepath.Join(GetLibDir(e.cfg.OutputDir, "libopenjp2"), "libopenjp2.a"))
	assert.Equal(t, []string{"libmissing", "libopenjp2"}, before)
	assert.Equal(t, before, after)

	failed := Failed(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "libmissing", failed[0].Library)

	var sb strings.Builder
	PrintSummary(&sb, results)
	out := sb.String()
	assert.Contains(t, out, "FAIL  libmissing")
	assert.Contains(t, out, " (stage): source archive missing")
	assert.Contains(t, out, "OK    libopenjp2")
}

func TestRunAllCancelled(t *testing.T) {
	e := newTestEnv(t, OSLinux)
	tasks := []*LibraryBuildTask{e.openjp2Task(t)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := RunAll(ctx, e.bc, tasks, nil)
	require.Len(t, results, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, e.fake.Calls())
	assert.NoDirExists(t, tasks[0].OutputSrc)
}

func TestRunTaskAbortedByOperator(t *testing.T) {
	e := newTestEnv(t, OSLinux)
	task := e.openjp2Task(t)
	stale := filepath.Join(task.OutputLib, "old.a")
	require.NoError(t, os.MkdirAll(task.OutputLib, 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	var out strings.Builder
	e.bc.Gate = &gate.Gate{In: strings.NewReader("n\n"), Out: &out, Interactive: true}

	res := RunTask(context.Background(), e.bc, task)
	assert.ErrorIs(t, res.Err, ErrAborted)
	assert.FileExists(t, stale)
	assert.Contains(t, out.String(), "Removing "+task.OutputLib)
	assert.Empty(t, e.fake.Calls())
}

func TestStepErrorFormat(t *testing.T) {
	err := stepErr(StepBuild, "libopenjp2", ErrArtifactMissing)
	assert.Equal(t, "libopenjp2: build: expected artifact missing", err.Error())
	// Already wrapped for the same library.
	assert.Same(t, err, stepErr(StepStage, "libopenjp2", err))
	assert.Nil(t, stepErr(StepBuild, "x", nil))
}
