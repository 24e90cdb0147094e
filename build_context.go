package ku

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mgenware/ku-natives/gate"
	"github.com/mgenware/ku-natives/inspect"
	"github.com/mgenware/ku-natives/io2"
	"github.com/mgenware/ku-natives/patch"
	"github.com/mgenware/ku-natives/runner"
	"github.com/sirupsen/logrus"
)

// BuildContext carries everything a build step needs. It is created once per
// run and shared read-only by all tasks.
type BuildContext struct {
	Platform *PlatformInfo
	Config   *Config
	Runner   runner.Runner
	Gate     gate.Confirmer
	// Nil disables artifact verification.
	Inspector inspect.Inspector
	Logger    *logrus.Logger
	// Progress bar output. Nil hides the bar.
	ProgressOut io.Writer

	Now func() time.Time
}

type BuildContextInitOptions struct {
	Platform  *PlatformInfo
	Config    *Config
	Runner    runner.Runner
	Gate      gate.Confirmer
	Inspector inspect.Inspector
	Logger    *logrus.Logger
}

func NewBuildContext(opt *BuildContextInitOptions) *BuildContext {
	if opt == nil || opt.Platform == nil || opt.Config == nil || opt.Runner == nil {
		panic("NewBuildContext: platform, config and runner are required")
	}
	g := opt.Gate
	if g == nil {
		g = gate.New(false)
	}
	logger := opt.Logger
	if logger == nil {
		logger = NewLogger(0, io.Discard)
	}
	return &BuildContext{
		Platform:  opt.Platform,
		Config:    opt.Config,
		Runner:    opt.Runner,
		Gate:      g,
		Inspector: opt.Inspector,
		Logger:    logger,
		Now:       time.Now,
	}
}

func (bc *BuildContext) log(task *LibraryBuildTask, step string) *logrus.Entry {
	return bc.Logger.WithFields(logrus.Fields{"lib": task.Name, "step": step})
}

func (bc *BuildContext) jobs() int {
	if bc.Config.Jobs > 0 {
		return bc.Config.Jobs
	}
	return bc.Platform.Jobs
}

func (bc *BuildContext) UnsupportedError() error {
	return fmt.Errorf("%w: %s", ErrUnsupportedOS, bc.Platform.OS)
}

// CommonCmakeArgs are shared by every OS.
func (bc *BuildContext) CommonCmakeArgs(task *LibraryBuildTask) []string {
	return []string{
		"-DCMAKE_BUILD_TYPE=Release",
		"-DCMAKE_INSTALL_PREFIX=" + task.InstallDir(),
		"-DBUILD_SHARED_LIBS=OFF",
		"-DCMAKE_POSITION_INDEPENDENT_CODE=ON",
	}
}

// ConfigureArgs returns the full cmake argument list; the source dir is last.
func (bc *BuildContext) ConfigureArgs(task *LibraryBuildTask) ([]string, error) {
	def := task.Def
	args := bc.CommonCmakeArgs(task)

	switch bc.Platform.OS {
	case OSDarwin:
		args = append(args,
			// Universal binary.
			"-DCMAKE_OSX_ARCHITECTURES="+strings.Join(archStrings(UniversalArchs), ";"),
			// Min SDK
			"-DCMAKE_OSX_DEPLOYMENT_TARGET="+MinMacosVersion,
			// Keep Homebrew copies of the same library out.
			"-DCMAKE_FIND_USE_CMAKE_SYSTEM_PATH=0",
			"-DCMAKE_IGNORE_PREFIX_PATH=/opt/homebrew;/usr/local",
		)
		args = append(args, def.CmakeArgs...)
		args = append(args, def.DarwinArgs...)
	case OSLinux:
		args = append(args,
			"-DCMAKE_C_COMPILER=gcc",
			"-DCMAKE_CXX_COMPILER=g++",
			"-DCMAKE_IGNORE_PREFIX_PATH=/usr/local",
		)
		for _, pkg := range def.DisablePackages {
			args = append(args, "-DCMAKE_DISABLE_FIND_PACKAGE_"+pkg+"=ON")
		}
		args = append(args, def.CmakeArgs...)
		args = append(args, def.LinuxArgs...)
	default:
		return nil, bc.UnsupportedError()
	}

	// Source dir is passed as the last argument.
	args = append(args, "-G", "Unix Makefiles", task.OutputSrc)
	return args, nil
}

type RunCmakeOpt struct {
	Args []string
	Env  []string
}

func (bc *BuildContext) RunCmake(ctx context.Context, task *LibraryBuildTask, opt *RunCmakeOpt) error {
	return bc.Runner.Spawn(ctx, &runner.SpawnOpt{
		Name:       "cmake",
		Args:       opt.Args,
		Env:        opt.Env,
		WorkingDir: task.BuildDir(),
	})
}

// Configure generates a fresh build dir for task.
func (bc *BuildContext) Configure(ctx context.Context, task *LibraryBuildTask) error {
	args, err := bc.ConfigureArgs(task)
	if err != nil {
		return err
	}
	if err := bc.Gate.Confirm(fmt.Sprintf("Configuring %s for %s (cmake)", task.Name, bc.Platform.OS)); err != nil {
		return err
	}
	if err := io2.Mkdirp(task.BuildDir()); err != nil {
		return err
	}
	bc.log(task, StepConfigure).Debug("cmake " + strings.Join(args, " "))
	return bc.RunCmake(ctx, task, &RunCmakeOpt{Args: args})
}

// Patch strips patch rules from generated build files. Only Linux hosts
// need it.
func (bc *BuildContext) Patch(task *LibraryBuildTask) (*patch.Result, error) {
	p, err := patch.New(task.Def.PatchRules)
	if err != nil {
		return nil, err
	}
	p.Logger = bc.log(task, StepPatch)
	res, err := p.Run(task.BuildDir())
	if err != nil {
		return nil, err
	}
	if res.Changed() {
		bc.log(task, StepPatch).Infof("removed %d reference(s) from %s", res.Removed, strings.Join(res.Modified, ", "))
	}
	return res, nil
}

type RunCmakeBuildOpt struct {
	Args []string
}

func (bc *BuildContext) RunCmakeBuildCore(ctx context.Context, task *LibraryBuildTask, opt *RunCmakeBuildOpt) error {
	if opt == nil {
		opt = &RunCmakeBuildOpt{}
	}
	args := []string{
		// --build
		"--build", ".",
		// -j
		"-j", fmt.Sprintf("%v", bc.jobs()),
		"--config", "Release",
	}
	if len(opt.Args) > 0 {
		args = append(args, opt.Args...)
	}
	return bc.Runner.Spawn(ctx, &runner.SpawnOpt{
		Name:       "cmake",
		Args:       args,
		WorkingDir: task.BuildDir(),
	})
}

// Build runs the parallel build after confirmation.
func (bc *BuildContext) Build(ctx context.Context, task *LibraryBuildTask) error {
	if err := bc.Gate.Confirm(fmt.Sprintf("Building %s with %d jobs", task.Name, bc.jobs())); err != nil {
		return err
	}
	return bc.RunCmakeBuildCore(ctx, task, nil)
}

func (bc *BuildContext) Install(ctx context.Context, task *LibraryBuildTask) error {
	return bc.Runner.Spawn(ctx, &runner.SpawnOpt{
		Name:       "cmake",
		Args:       []string{"--install", "."},
		WorkingDir: task.BuildDir(),
	})
}

// Verify inspects the copied static archive.
func (bc *BuildContext) Verify(task *LibraryBuildTask, art *BuildArtifacts) error {
	if !bc.Config.Verify || bc.Inspector == nil {
		bc.log(task, StepVerify).Debug("verification skipped")
		return nil
	}
	switch bc.Platform.OS {
	case OSDarwin:
		if err := inspect.CheckUniversal(bc.Inspector, art.StaticLibFile, archStrings(UniversalArchs)); err != nil {
			return err
		}
		return inspect.CheckMinOS(bc.Inspector, art.StaticLibFile, MinMacosVersion)
	case OSLinux:
		return inspect.CheckMembers(bc.Inspector, art.StaticLibFile)
	}
	return bc.UnsupportedError()
}

func (bc *BuildContext) now() time.Time {
	if bc.Now == nil {
		return time.Now()
	}
	return bc.Now()
}
