package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/okian/gradeetl/internal/adapters/sink/sqlsink"
	"github.com/okian/gradeetl/internal/adapters/storage/dirstore"
	service "github.com/okian/gradeetl/internal/app"
	"github.com/okian/gradeetl/internal/domain/model"
	"github.com/okian/gradeetl/internal/domain/normalize"
	"github.com/okian/gradeetl/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const header = "ID,Year,Midterm1,Midterm2,Midterm3,Final Exam Pass?\n"

// fakeSink keeps every record set it receives.
type fakeSink struct {
	name string
	err  error

	mu    sync.Mutex
	calls int
	table string
	set   model.RecordSet
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) ReplaceTable(_ context.Context, table string, set model.RecordSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.table = table
	f.set = set
	return nil
}

// listingStore returns a fixed listing and counts fetches per name. Fetch
// runs onFetch first when set.
type listingStore struct {
	names   []string
	files   map[string]string
	onFetch func()

	mu      sync.Mutex
	fetches map[string]int
}

func (l *listingStore) List(context.Context) ([]string, error) {
	return l.names, nil
}

func (l *listingStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	if l.onFetch != nil {
		l.onFetch()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fetches == nil {
		l.fetches = map[string]int{}
	}
	l.fetches[name]++
	return []byte(l.files[name]), nil
}

func writeFiles(fsys afero.Fs, files map[string]string) {
	for name, body := range files {
		So(afero.WriteFile(fsys, filepath.Join("/landing", name), []byte(body), 0o644), ShouldBeNil)
	}
}

func TestPipeline_Run(t *testing.T) {
	ctx := context.Background()

	Convey("Given two landing files sharing an id", t, func() {
		fsys := afero.NewMemMapFs()
		writeFiles(fsys, map[string]string{
			"csv_data_1.csv": header +
				"7,2,85.5,92,60,1\n" +
				"42,1,50,50,50,0\n" +
				"8,7,70,70,70,1\n" +
				"9,1,-5,70,70,1\n",
			"csv_data_2.csv": header +
				"42,4,99,99,99,1\n" +
				"3.0,3,10.25,20.75,30,0\n",
		})
		store := dirstore.New("/landing", dirstore.WithFs(fsys))
		sk := &fakeSink{name: "fake"}

		Convey("When running with defaults", func() {
			p := service.New(service.WithStore(store), service.WithSinks(sk), service.WithWorkerCount(2))
			res, err := p.Run(ctx)

			Convey("Then the run should finish and load the merged set", func() {
				So(err, ShouldBeNil)
				So(res.State, ShouldEqual, service.StateDone)
				So(p.State(), ShouldEqual, service.StateDone)
				So(res.RunID, ShouldNotBeEmpty)
				So(res.Loaded, ShouldEqual, 3)
				So(res.Rejected, ShouldEqual, 2)
				So(res.Duplicates, ShouldEqual, 1)
				So(res.Processed, ShouldResemble, []string{"csv_data_1.csv", "csv_data_2.csv"})
				So(sk.calls, ShouldEqual, 1)
				So(sk.table, ShouldEqual, "grades")
				So(sk.set.IDs(), ShouldResemble, []string{"000003", "000007", "000042"})
			})

			Convey("Then the first file should win for a repeated id", func() {
				r, ok := sk.set.Lookup("000042")
				So(ok, ShouldBeTrue)
				So(r.Year, ShouldEqual, model.Freshman)
				So(r.Midterm1, ShouldEqual, 50.0)
				So(r.Passed, ShouldBeFalse)
			})

			Convey("Then values should be canonical", func() {
				r, _ := sk.set.Lookup("000007")
				So(r, ShouldResemble, model.Record{
					ID: "000007", Year: model.Sophomore,
					Midterm1: 85.5, Midterm2: 92, Midterm3: 60, Passed: true,
				})
				r, _ = sk.set.Lookup("000003")
				So(r.Midterm1, ShouldEqual, 10.0)
				So(r.Midterm2, ShouldEqual, 21.0)
			})

			Convey("Then the file reports should count rejections by column", func() {
				So(res.Files, ShouldHaveLength, 2)
				So(res.Files[0].Parsed, ShouldEqual, 4)
				So(res.Files[0].Accepted, ShouldEqual, 2)
				So(res.Files[0].Rejected[model.ColumnYear], ShouldEqual, 1)
				So(res.Files[0].Rejected[model.ColumnMidterm1], ShouldEqual, 1)
				So(res.Files[1].Err, ShouldBeNil)
			})
		})

		Convey("When half-up rounding is configured", func() {
			p := service.New(
				service.WithStore(store),
				service.WithSinks(sk),
				service.WithNormalizer(normalize.New(normalize.WithRounding(normalize.HalfUp))),
			)
			_, err := p.Run(ctx)

			So(err, ShouldBeNil)
			r, _ := sk.set.Lookup("000003")
			So(r.Midterm1, ShouldEqual, 10.5)
		})

		Convey("When the first file was loaded by an earlier run", func() {
			p := service.New(
				service.WithStore(store),
				service.WithSinks(sk),
				service.WithProcessed([]string{"csv_data_1.csv"}),
				service.WithTable("analytics.grades"),
			)
			res, err := p.Run(ctx)

			Convey("Then only the new file should be loaded", func() {
				So(err, ShouldBeNil)
				So(res.Skipped, ShouldEqual, 1)
				So(res.Processed, ShouldResemble, []string{"csv_data_2.csv"})
				So(sk.table, ShouldEqual, "analytics.grades")
				r, _ := sk.set.Lookup("000042")
				So(r.Year, ShouldEqual, model.Senior)
			})
		})

		Convey("When every file was already processed", func() {
			p := service.New(
				service.WithStore(store),
				service.WithSinks(sk),
				service.WithProcessed([]string{"csv_data_1.csv", "csv_data_2.csv"}),
			)
			res, err := p.Run(ctx)

			Convey("Then the sinks should not be touched", func() {
				So(err, ShouldBeNil)
				So(res.State, ShouldEqual, service.StateDone)
				So(res.Loaded, ShouldEqual, 0)
				So(sk.calls, ShouldEqual, 0)
			})
		})

		Convey("When an include pattern selects one file", func() {
			p := service.New(service.WithStore(store), service.WithSinks(sk), service.WithInclude("*_2.csv"))
			res, err := p.Run(ctx)

			So(err, ShouldBeNil)
			So(res.Processed, ShouldResemble, []string{"csv_data_2.csv"})
			So(res.Skipped, ShouldEqual, 1)
		})

		Convey("When an include pattern is malformed", func() {
			p := service.New(service.WithStore(store), service.WithSinks(sk), service.WithInclude("[a-"))
			res, err := p.Run(ctx)

			So(errors.Is(err, service.ErrInvalidPattern), ShouldBeTrue)
			So(res.State, ShouldEqual, service.StateFailed)
		})

		Convey("When the first sink fails", func() {
			broken := &fakeSink{name: "broken", err: &model.SinkError{Sink: "broken", Table: "grades", Err: model.ErrConnection}}
			p := service.New(service.WithStore(store), service.WithSinks(broken, sk))
			res, err := p.Run(ctx)

			Convey("Then the run should fail without touching later sinks", func() {
				So(errors.Is(err, model.ErrSink), ShouldBeTrue)
				So(errors.Is(err, model.ErrConnection), ShouldBeTrue)
				So(res.State, ShouldEqual, service.StateFailed)
				So(broken.calls, ShouldEqual, 1)
				So(sk.calls, ShouldEqual, 0)
				So(res.Committed, ShouldBeEmpty)
			})
		})

		Convey("When a later sink fails", func() {
			broken := &fakeSink{name: "broken", err: &model.SinkError{Sink: "broken", Table: "grades", Err: model.ErrSchema}}
			p := service.New(service.WithStore(store), service.WithSinks(sk, broken))
			res, err := p.Run(ctx)

			Convey("Then the result should name the sink that already committed", func() {
				So(errors.Is(err, model.ErrSchema), ShouldBeTrue)
				So(res.State, ShouldEqual, service.StateFailed)
				So(res.Committed, ShouldResemble, []string{"fake"})
			})
		})
	})

	Convey("Given a landing directory with an unreadable file", t, func() {
		fsys := afero.NewMemMapFs()
		writeFiles(fsys, map[string]string{
			"a.csv": header + "1,1,10,10,10,0\n",
			"b.csv": "",
			"c.csv": header + "2,2,20,20,20,1\n",
		})
		store := dirstore.New("/landing", dirstore.WithFs(fsys))
		sk := &fakeSink{name: "fake"}

		Convey("When the failure policy is abort", func() {
			p := service.New(service.WithStore(store), service.WithSinks(sk), service.WithWorkerCount(1))
			res, err := p.Run(ctx)

			Convey("Then the run should fail before any sink is touched", func() {
				So(errors.Is(err, model.ErrParse), ShouldBeTrue)
				So(res.State, ShouldEqual, service.StateFailed)
				So(sk.calls, ShouldEqual, 0)
			})
		})

		Convey("When the failure policy is skip", func() {
			p := service.New(service.WithStore(store), service.WithSinks(sk), service.WithFailurePolicy(service.PolicySkip))
			res, err := p.Run(ctx)

			Convey("Then the remaining files should be loaded", func() {
				So(err, ShouldBeNil)
				So(res.Processed, ShouldResemble, []string{"a.csv", "c.csv"})
				So(res.Files[1].Err, ShouldNotBeNil)
				So(sk.set.IDs(), ShouldResemble, []string{"000001", "000002"})
			})
		})
	})

	Convey("Given a store that lists the same file twice", t, func() {
		store := &listingStore{
			names: []string{"a.csv", "a.csv"},
			files: map[string]string{"a.csv": header + "1,1,10,10,10,0\n2,2,20,20,20,1\n"},
		}
		sk := &fakeSink{name: "fake"}
		p := service.New(service.WithStore(store), service.WithSinks(sk), service.WithWorkerCount(1))

		res, err := p.Run(ctx)

		Convey("Then the file should be offered twice and merged first-wins", func() {
			So(err, ShouldBeNil)
			So(store.fetches["a.csv"], ShouldEqual, 2)
			So(res.Skipped, ShouldEqual, 0)
			So(res.Files, ShouldHaveLength, 2)
			So(res.Processed, ShouldResemble, []string{"a.csv", "a.csv"})
			So(res.Duplicates, ShouldEqual, 2)
			So(sk.set.IDs(), ShouldResemble, []string{"000001", "000002"})
		})

		Convey("Then an earlier run still excludes it", func() {
			again := service.New(
				service.WithStore(store),
				service.WithSinks(sk),
				service.WithProcessed([]string{"a.csv"}),
			)
			res, err := again.Run(ctx)

			So(err, ShouldBeNil)
			So(res.Skipped, ShouldEqual, 2)
			So(res.Processed, ShouldBeEmpty)
		})
	})

	Convey("Given a run canceled while fetching under the skip policy", t, func() {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		store := &listingStore{
			names:   []string{"a.csv"},
			files:   map[string]string{"a.csv": header + "1,1,10,10,10,0\n"},
			onFetch: cancel,
		}
		sk := &fakeSink{name: "fake"}
		p := service.New(
			service.WithStore(store),
			service.WithSinks(sk),
			service.WithWorkerCount(1),
			service.WithFailurePolicy(service.PolicySkip),
		)

		res, err := p.Run(runCtx)

		Convey("Then the run should fail instead of skipping the file", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(res.State, ShouldEqual, service.StateFailed)
			So(sk.calls, ShouldEqual, 0)
		})
	})

	Convey("Given a pipeline without a store", t, func() {
		_, err := service.New().Run(ctx)

		So(errors.Is(err, service.ErrNoStore), ShouldBeTrue)
	})

	Convey("Given a pipeline loading into SQLite", t, func() {
		fsys := afero.NewMemMapFs()
		writeFiles(fsys, map[string]string{
			"csv_data_1.csv": header + "7,2,85.5,92,60,1\n5,1,10,10,10,0\n",
		})
		db, err := sqlsink.Open(ctx, sqlsink.SQLite, filepath.Join(t.TempDir(), "grades.db"))
		So(err, ShouldBeNil)
		Reset(func() { _ = db.Close() })
		sqlite := sqlsink.New(db, sqlsink.SQLite)

		p := service.New(service.WithStore(dirstore.New("/landing", dirstore.WithFs(fsys))), service.WithSinks(sqlite))
		res, err := p.Run(ctx)

		So(err, ShouldBeNil)
		n, err := sqlite.Count(ctx, "grades")
		So(err, ShouldBeNil)
		So(n, ShouldEqual, res.Loaded)
		So(n, ShouldEqual, 2)
	})
}

func TestParseFailurePolicy(t *testing.T) {
	Convey("Given policy names", t, func() {
		p, err := service.ParseFailurePolicy("")
		So(err, ShouldBeNil)
		So(p, ShouldEqual, service.PolicyAbort)

		p, err = service.ParseFailurePolicy(" SKIP ")
		So(err, ShouldBeNil)
		So(p, ShouldEqual, service.PolicySkip)

		_, err = service.ParseFailurePolicy("retry")
		So(errors.Is(err, service.ErrUnknownPolicy), ShouldBeTrue)
	})
}
