package features

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/dispatchkit/extloader"
	"github.com/dispatchkit/extloader/internal/configread"
)

var (
	errObjectNotLoaded  = errors.New("object is not loaded")
	errObjectHasNoError = errors.New("object has no stored error")
	errWrongRepository  = errors.New("object was not loaded from the expected repository")
	errObjectChanged    = errors.New("object pointer changed unexpectedly")
	errObjectStillFound = errors.New("object still exists")
	errSawPreviousValue = errors.New("factory was called with a non-nil previous version")
)

type loaderScenario struct {
	loader       *extloader.Loader
	objects      map[string]*scenarioObject
	shouldFail   bool
	sawPrevious  bool
	lastResult   extloader.LoadResult
	loadedBefore extloader.Loadable
	configSeq    int
}

type scenarioObject struct {
	name string
	seq  int
}

func (o *scenarioObject) Clone() extloader.Loadable       { c := *o; return &c }
func (o *scenarioObject) IsModified() (bool, error)       { return false, nil }
func (o *scenarioObject) SupportUpdates() bool            { return false }
func (o *scenarioObject) GetLifetime() extloader.Lifetime { return extloader.Lifetime{} }
func (o *scenarioObject) GetName() string                 { return o.name }

func (s *loaderScenario) reset() {
	s.objects = make(map[string]*scenarioObject)
	s.shouldFail = false
	s.sawPrevious = false
	s.loadedBefore = nil
	s.configSeq = 0

	loader, err := extloader.New(extloader.Options{
		TypeName: "scenario",
		Settings: extloader.RepositorySettings{ExternalConfigPrefix: "external_config", ExternalNameField: "external_name"},
		CreateObject: func(name string, cfg extloader.ObjectConfig, previous extloader.Loadable) (extloader.Loadable, error) {
			if previous != nil {
				s.sawPrevious = true
			}
			if s.shouldFail {
				return nil, errors.New("scenario factory failure")
			}
			return &scenarioObject{name: name, seq: s.configSeq}, nil
		},
		Seed: 7,
	})
	if err != nil {
		panic(err)
	}
	s.loader = loader
}

type fakeRepo struct {
	files map[string]string
}

func newFakeRepo() *fakeRepo { return &fakeRepo{files: make(map[string]string)} }

func (r *fakeRepo) Exists(path string) bool { _, ok := r.files[path]; return ok }
func (r *fakeRepo) UpdateTime(path string) (time.Time, error) {
	return time.Now(), nil
}
func (r *fakeRepo) Load(path string) (configread.Tree, error) {
	return configread.ParseYAML([]byte(r.files[path]))
}
func (r *fakeRepo) AllPaths() ([]string, error) {
	paths := make([]string, 0, len(r.files))
	for p := range r.files {
		paths = append(paths, p)
	}
	return paths, nil
}

var scenarioRepo *fakeRepo

func (s *loaderScenario) aRepositoryWithAnObjectDefinedIn(repoName, objectName, path string) error {
	scenarioRepo = newFakeRepo()
	scenarioRepo.files[path] = "external_config:\n  external_name: " + objectName + "\n"
	s.loader.AddRepository(repoName, scenarioRepo)
	return nil
}

func (s *loaderScenario) objectIsLoaded(name string) error {
	result, ok := s.loader.TryLoad(name, extloader.WAIT)
	if !ok || result.Status != extloader.Loaded {
		return errObjectNotLoaded
	}
	s.lastResult = result
	if s.loadedBefore == nil {
		s.loadedBefore = result.Object
	}
	return nil
}

func (s *loaderScenario) iTryToLoad(name string) error {
	result, ok := s.loader.TryLoad(name, extloader.WAIT)
	if !ok {
		return errObjectNotLoaded
	}
	s.lastResult = result
	return nil
}

func (s *loaderScenario) wasLoadedFromRepository(name, repoName string) error {
	if s.lastResult.RepositoryName != repoName {
		return errWrongRepository
	}
	return nil
}

func (s *loaderScenario) theFactoryForIsSetToFail(name string) error {
	s.shouldFail = true
	return nil
}

func (s *loaderScenario) iForceAReloadOf(name string) error {
	result, ok := s.loader.TryLoadOrReload(name, extloader.WAIT)
	if !ok {
		return errObjectNotLoaded
	}
	s.lastResult = result
	return nil
}

func (s *loaderScenario) hasAStoredError(name string) error {
	if s.lastResult.Err == nil {
		return errObjectHasNoError
	}
	return nil
}

func (s *loaderScenario) theObjectForIsUnchanged(name string) error {
	if s.lastResult.Object != s.loadedBefore {
		return errObjectChanged
	}
	return nil
}

func (s *loaderScenario) theConfigurationForChanges(name string) error {
	s.configSeq++
	for path := range scenarioRepo.files {
		scenarioRepo.files[path] = "external_config:\n  external_name: " + name + "\n  seq: " + time.Now().String() + "\n"
	}
	return nil
}

func (s *loaderScenario) iReloadTheConfiguration() error {
	s.loader.ReloadConfig()
	return nil
}

func (s *loaderScenario) theFactoryForWasCalledWithNoPreviousVersion(name string) error {
	if s.sawPrevious {
		return errSawPreviousValue
	}
	return nil
}

func (s *loaderScenario) isRemovedFrom(path, repoName string) error {
	delete(scenarioRepo.files, path)
	return nil
}

func (s *loaderScenario) doesNotExist(name string) error {
	if s.loader.GetCurrentStatus(name) != extloader.NotExist {
		return errObjectStillFound
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	s := &loaderScenario{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		s.reset()
		return ctx, nil
	})

	ctx.Step(`^a repository "([^"]*)" with an object "([^"]*)" defined in "([^"]*)"$`, s.aRepositoryWithAnObjectDefinedIn)
	ctx.Step(`^"([^"]*)" is loaded$`, s.objectIsLoaded)
	ctx.Step(`^I try to load "([^"]*)"$`, s.iTryToLoad)
	ctx.Step(`^"([^"]*)" was loaded from repository "([^"]*)"$`, s.wasLoadedFromRepository)
	ctx.Step(`^the factory for "([^"]*)" is set to fail$`, s.theFactoryForIsSetToFail)
	ctx.Step(`^I force a reload of "([^"]*)"$`, s.iForceAReloadOf)
	ctx.Step(`^"([^"]*)" has a stored error$`, s.hasAStoredError)
	ctx.Step(`^the object for "([^"]*)" is unchanged$`, s.theObjectForIsUnchanged)
	ctx.Step(`^the configuration for "([^"]*)" changes$`, s.theConfigurationForChanges)
	ctx.Step(`^I reload the configuration$`, s.iReloadTheConfiguration)
	ctx.Step(`^the factory for "([^"]*)" was called with no previous version$`, s.theFactoryForWasCalledWithNoPreviousVersion)
	ctx.Step(`^"([^"]*)" is removed from "([^"]*)"$`, s.isRemovedFrom)
	ctx.Step(`^"([^"]*)" does not exist$`, s.doesNotExist)
}

func TestLoaderScenarios(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"loading.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
