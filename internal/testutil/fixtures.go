package testutil

import "fmt"

// Embedding is one synthetic embedding row.
type Embedding struct {
	Filename string
	Artist   string
	Vector   []float32
}

// Artist is one synthetic artist row.
type Artist struct {
	Name        string
	Nationality string
	Years       string
	Bio         string
}

// Gallery returns perArtist embeddings for each of nArtists artists, with
// dim-dimensional vectors. Filenames and vectors are deterministic:
// "artist_02/img_003.jpg" has every component set to 2 + 3/100.
func Gallery(nArtists, perArtist, dim int) ([]Artist, []Embedding) {
	artists := make([]Artist, 0, nArtists)
	embs := make([]Embedding, 0, nArtists*perArtist)
	for a := 0; a < nArtists; a++ {
		name := fmt.Sprintf("artist_%02d", a)
		artists = append(artists, Artist{
			Name:        name,
			Nationality: "Dutch",
			Years:       fmt.Sprintf("%d-%d", 1800+a, 1860+a),
			Bio:         "Painter " + name,
		})
		for i := 0; i < perArtist; i++ {
			vec := make([]float32, dim)
			for j := range vec {
				vec[j] = float32(a) + float32(i)/100 + float32(j)/10000
			}
			embs = append(embs, Embedding{
				Filename: fmt.Sprintf("%s/img_%03d.jpg", name, i),
				Artist:   name,
				Vector:   vec,
			})
		}
	}
	return artists, embs
}
