package archive_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/workloop/internal/adapters/archive"
	"github.com/okian/workloop/internal/domain/model"
)

type fakeUploader struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &manager.UploadOutput{}, nil
}

func TestS3Archiver(t *testing.T) {
	ctx := context.Background()
	snap := model.PerformanceSnapshot{
		ID:        "snap-1",
		WorkerID:  "cloud-specialist",
		Composite: 0.7,
		CreatedAt: time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC),
	}

	Convey("Given an archiver with a prefix", t, func() {
		up := &fakeUploader{}
		a, err := archive.NewS3(ctx, "reports", "workloop", archive.WithUploader(up))
		So(err, ShouldBeNil)

		Convey("When a snapshot is archived", func() {
			key, err := a.Archive(ctx, snap)
			So(err, ShouldBeNil)

			Convey("Then it lands under the dated worker path", func() {
				So(key, ShouldEqual, "workloop/snapshots/2026/03/09/cloud-specialist/snap-1.json")
				So(*up.inputs[0].Bucket, ShouldEqual, "reports")
				So(*up.inputs[0].Key, ShouldEqual, key)
				So(*up.inputs[0].ContentType, ShouldEqual, "application/json")
				So(up.bodies[0], ShouldContainSubstring, `"composite":0.7`)
			})
		})

		Convey("When the upload fails", func() {
			up.err = errors.New("access denied")
			_, err := a.Archive(ctx, snap)
			So(errors.Is(err, archive.ErrArchive), ShouldBeTrue)
		})
	})

	Convey("Given no prefix", t, func() {
		a, _ := archive.NewS3(ctx, "reports", "", archive.WithUploader(&fakeUploader{}))
		So(a.Key(snap), ShouldEqual, "snapshots/2026/03/09/cloud-specialist/snap-1.json")
	})

	Convey("Given no bucket", t, func() {
		_, err := archive.NewS3(ctx, "", "p", archive.WithUploader(&fakeUploader{}))
		So(errors.Is(err, archive.ErrArchive), ShouldBeTrue)
	})

	Convey("The no-op archiver drops snapshots", t, func() {
		var a archive.Archiver = archive.Nop{}
		key, err := a.Archive(ctx, snap)
		So(err, ShouldBeNil)
		So(key, ShouldBeEmpty)
	})
}
