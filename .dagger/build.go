package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/genrelay/internal/dagger"
)

const versionPkg = "github.com/papercomputeco/genrelay/pkg/utils"

// Build and return directory of go binaries
func (g *Genrelay) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	// define build matrix
	gooses := []string{"linux", "darwin"}
	goarches := []string{"amd64", "arm64"}

	// create empty directory to put build artifacts
	outputs := dag.Directory()

	golang := dag.Container().
		From("golang:1.25-alpine").
		WithEnvVariable("CGO_ENABLED", "0").
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithDirectory("/src", g.Source).
		WithWorkdir("/src")

	for _, goos := range gooses {
		for _, goarch := range goarches {
			// create directory for each OS and architecture
			path := fmt.Sprintf("%s/%s/", goos, goarch)

			build := golang.
				WithEnvVariable("GOOS", goos).
				WithEnvVariable("GOARCH", goarch).
				WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/genrelay"})

			outputs = outputs.WithDirectory(path, build.Directory(path))
		}
	}

	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (g *Genrelay) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X '%s.Version=%s'", versionPkg, version),
		fmt.Sprintf("-X '%s.Sha=%s'", versionPkg, commit),
		fmt.Sprintf("-X '%s.Buildtime=%s'", versionPkg, buildtime),
	}

	return g.Build(ctx, strings.Join(ldflags, " "))
}

// Container packages the linux/amd64 genrelay binary into a minimal image
// that runs "genrelay serve".
func (g *Genrelay) Container(
	ctx context.Context,

	// Version string of build
	// +optional
	// +default="dev"
	version string,

	// Git commit SHA of build
	// +optional
	// +default="HEAD"
	commit string,
) *dagger.Container {
	bin := g.BuildRelease(ctx, version, commit).File("linux/amd64/genrelay")

	return dag.Container(dagger.ContainerOpts{Platform: "linux/amd64"}).
		From("gcr.io/distroless/static-debian12:nonroot").
		WithFile("/usr/local/bin/genrelay", bin).
		WithExposedPort(8080).
		WithEntrypoint([]string{"/usr/local/bin/genrelay"}).
		WithDefaultArgs([]string{"serve", "--listen", ":8080", "--json-logs"})
}
