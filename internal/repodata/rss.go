package repodata

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/gorilla/feeds"
	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/atomicfile"
)

// BuildFeed renders a per-channel RSS feed listing each package name's
// latest version, generated from the same channeldata snapshot emitted to
// channeldata.json. created is passed in by the caller (the scheduler
// passes time.Now(); tests pass a fixed value) since this package never
// reads the system clock, keeping repodata emission deterministic per spec
// §8.4.
func BuildFeed(channelTitle, channelLink string, cd Channeldata, created time.Time) (*feeds.Feed, error) {
	feed := &feeds.Feed{
		Title:       channelTitle,
		Link:        &feeds.Link{Href: channelLink},
		Description: "Recently updated packages in " + channelTitle,
		Created:     created,
	}

	names := make([]string, 0, len(cd.Packages))
	for name := range cd.Packages {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pkg := cd.Packages[name]
		feed.Items = append(feed.Items, &feeds.Item{
			Title:       name + " " + pkg.Version,
			Link:        &feeds.Link{Href: channelLink + "/" + name},
			Description: pkg.Summary,
			Created:     created,
		})
	}
	return feed, nil
}

// EmitFeed renders feed to RSS XML and writes rss.xml at the channel root.
func EmitFeed(channelRoot string, feed *feeds.Feed) error {
	rss, err := feed.ToRss()
	if err != nil {
		return errors.Wrap(err, "rendering rss feed")
	}
	return atomicfile.Write(filepath.Join(channelRoot, "rss.xml"), []byte(rss), 0o644)
}
