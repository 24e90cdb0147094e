package ku

// LibraryBuildTask owns the three output dirs of one library. Tasks share no
// mutable state.
type LibraryBuildTask struct {
	Def *LibraryDef

	// Example: libopenjp2
	Name        string
	ArchivePath string
	// ${OutputDir}/include/${Name}
	OutputInclude string
	// ${OutputDir}/lib/${Name}
	OutputLib string
	// ${OutputDir}/src/${Name}
	OutputSrc string
}

// NewLibraryBuildTask never fails on a missing archive; that is reported by
// Stage so other tasks of the same run are unaffected.
func NewLibraryBuildTask(cfg *Config, def *LibraryDef) *LibraryBuildTask {
	archivePath, _ := ResolveArchive(cfg.ArchivesDir, def)
	return &LibraryBuildTask{
		Def:           def,
		Name:          def.Name,
		ArchivePath:   archivePath,
		OutputInclude: GetIncludeDir(cfg.OutputDir, def.Name),
		OutputLib:     GetLibDir(cfg.OutputDir, def.Name),
		OutputSrc:     GetSrcDir(cfg.OutputDir, def.Name),
	}
}

// NewLibraryBuildTasks creates one task per definition.
func NewLibraryBuildTasks(cfg *Config, defs []*LibraryDef) []*LibraryBuildTask {
	tasks := make([]*LibraryBuildTask, 0, len(defs))
	for _, d := range defs {
		tasks = append(tasks, NewLibraryBuildTask(cfg, d))
	}
	return tasks
}

func (t *LibraryBuildTask) BuildDir() string {
	return GetBuildDir(t.OutputSrc)
}

func (t *LibraryBuildTask) InstallDir() string {
	return GetInstallDir(t.OutputSrc)
}

func (t *LibraryBuildTask) OutputDirs() []string {
	return []string{t.OutputInclude, t.OutputLib, t.OutputSrc}
}
