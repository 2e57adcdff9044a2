package localdb

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseCompression(t *testing.T) {
	for c := NoCompression; c < compressionCount; c++ {
		deepEqual(t, must(ParseCompression(c.String())), c)
	}
	deepEqual(t, must(ParseCompression("ZSTD")), Zstd)
	deepEqual(t, must(ParseCompression("")), NoCompression)
	if _, err := ParseCompression("gzip"); err == nil {
		t.Errorf("** parsed an unsupported compression")
	}

	var cfg struct {
		Compression Compression `yaml:"compression"`
	}
	success(t, yaml.Unmarshal([]byte("compression: lz4\n"), &cfg))
	deepEqual(t, cfg.Compression, LZ4)
	deepEqual(t, string(must(yaml.Marshal(&cfg))), "compression: lz4\n")
}

func TestCompressedDocuments(t *testing.T) {
	bio := strings.Repeat("likes long walks on the beach. ", 40)
	for c := NoCompression; c < compressionCount; c++ {
		for _, backend := range backends {
			t.Run(c.String()+"/"+backend, func(t *testing.T) {
				db := setup(t, backend, testSchema, Options{Compression: c, CompressionThreshold: 64})

				big := must(players.Insert(ctx, db, uint64(1), Player{Name: "alice", Team: "red", Bio: bio}))
				small := must(players.Insert(ctx, db, uint64(2), Player{Name: "bob"}))

				deepEqual(t, must(players.Get(ctx, db, uint64(1))), big)
				deepEqual(t, must(players.Get(ctx, db, uint64(2))), small)

				success(t, db.read(ctx, func(tx *tx) error {
					vle := must(tx.load("players", big.Header.ID))
					deepEqual(t, vle.Flags.compression(), c)
					vle = must(tx.load("players", small.Header.ID))
					deepEqual(t, vle.Flags.compression(), NoCompression)
					return nil
				}))

				// views and revisions work on the uncompressed contents
				success(t, big.Modify(ctx, db, players, func(p *Player) { p.Rank = 9 }))
				recs := must(playersByTeam.Query(ctx, db, playersByTeam.WithKey("red")))
				deepEqual(t, teamRanks(recs), []int{9})
				docs := must(playersByName.QueryWithDocs(ctx, db, playersByName.WithKey("alice")))
				deepEqual(t, docs[0].Document.Contents.Bio, bio)
			})
		}
	}
}
