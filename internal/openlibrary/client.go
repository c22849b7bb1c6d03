// Package openlibrary is a thin read-only client for the public Open Library
// API, covering the two lookups the dashboard needs: author search by free
// text and the list of works for an author key.
package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const DefaultBaseURL = "https://openlibrary.org"

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type Author struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	WorkCount   int      `json:"workCount"`
	TopWork     *string  `json:"topWork"`
	Bio         *string  `json:"bio"`
	BirthDate   *string  `json:"birthDate"`
	TopSubjects []string `json:"topSubjects"`
}

type AuthorSearchResult struct {
	NumFound int      `json:"numFound"`
	Authors  []Author `json:"authors"`
}

type Book struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	FirstPublishYear *int     `json:"firstPublishYear"`
	CoverID          *int     `json:"coverId"`
	Subjects         []string `json:"subjects"`
	Description      *string  `json:"description"`
}

type WorksResult struct {
	Size  int    `json:"size"`
	Books []Book `json:"books"`
}

type searchAuthorsResponse struct {
	NumFound int `json:"numFound"`
	Docs     []struct {
		Key         string   `json:"key"`
		Name        string   `json:"name"`
		WorkCount   int      `json:"work_count"`
		TopWork     *string  `json:"top_work"`
		Bio         *string  `json:"bio"`
		BirthDate   *string  `json:"birth_date"`
		TopSubjects []string `json:"top_subjects"`
	} `json:"docs"`
}

type worksResponse struct {
	Size    int `json:"size"`
	Entries []struct {
		Key              string          `json:"key"`
		Title            string          `json:"title"`
		FirstPublishYear *int            `json:"first_publish_year"`
		Covers           []int           `json:"covers"`
		Subjects         []string        `json:"subjects"`
		Description      workDescription `json:"description"`
	} `json:"entries"`
}

// workDescription absorbs the two shapes Open Library uses for descriptions:
// a plain string or an object {"type": ..., "value": ...}.
type workDescription struct {
	Value *string
}

func (d *workDescription) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		d.Value = &plain
		return nil
	}
	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Value != "" {
		d.Value = &wrapped.Value
		return nil
	}
	d.Value = nil
	return nil
}

// SearchAuthors queries authors by free text and trims the result to the
// fields the dashboard renders, capping topSubjects at three.
func (c *Client) SearchAuthors(ctx context.Context, query string) (*AuthorSearchResult, error) {
	endpoint := fmt.Sprintf("%s/search/authors.json?q=%s", c.BaseURL, url.QueryEscape(query))

	var raw searchAuthorsResponse
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}

	result := &AuthorSearchResult{NumFound: raw.NumFound, Authors: []Author{}}
	for _, doc := range raw.Docs {
		subjects := doc.TopSubjects
		if len(subjects) > 3 {
			subjects = subjects[:3]
		}
		if subjects == nil {
			subjects = []string{}
		}
		result.Authors = append(result.Authors, Author{
			Key:         doc.Key,
			Name:        doc.Name,
			WorkCount:   doc.WorkCount,
			TopWork:     doc.TopWork,
			Bio:         doc.Bio,
			BirthDate:   doc.BirthDate,
			TopSubjects: subjects,
		})
	}
	return result, nil
}

// AuthorWorks lists an author's works, keeping the first cover id and at most
// five subjects per work.
func (c *Client) AuthorWorks(ctx context.Context, authorKey string) (*WorksResult, error) {
	endpoint := fmt.Sprintf("%s/authors/%s/works.json", c.BaseURL, url.PathEscape(authorKey))

	var raw worksResponse
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}

	result := &WorksResult{Size: raw.Size, Books: []Book{}}
	for _, entry := range raw.Entries {
		var coverID *int
		if len(entry.Covers) > 0 {
			id := entry.Covers[0]
			coverID = &id
		}
		subjects := entry.Subjects
		if len(subjects) > 5 {
			subjects = subjects[:5]
		}
		if subjects == nil {
			subjects = []string{}
		}
		result.Books = append(result.Books, Book{
			Key:              entry.Key,
			Title:            entry.Title,
			FirstPublishYear: entry.FirstPublishYear,
			CoverID:          coverID,
			Subjects:         subjects,
			Description:      entry.Description.Value,
		})
	}
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("open library responded with status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(dst)
}
