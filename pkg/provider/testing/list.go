package testing

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunListTests executes listing and pagination tests.
func (suite *ProviderTestSuite) RunListTests(t *testing.T) {
	t.Run("List_Empty", suite.testListEmpty)
	t.Run("List_SeparatesFilesAndFolders", suite.testListSeparates)
	t.Run("List_Pagination", suite.testListPagination)
}

func (suite *ProviderTestSuite) testListEmpty(t *testing.T) {
	p := suite.newProvider(t)
	folder := mustFolder(t, p, "", "empty")

	result := ListAll(t, p, folder.RemoteID, 0)
	assert.Empty(t, result.Files)
	assert.Empty(t, result.Folders)
}

func (suite *ProviderTestSuite) testListSeparates(t *testing.T) {
	p := suite.newProvider(t)
	folder := mustFolder(t, p, "", "mixed")
	mustFolder(t, p, folder.RemoteID, "sub")
	Upload(t, p, folder.RemoteID, "file.txt", []byte("f"))

	result := ListAll(t, p, folder.RemoteID, 0)
	require.Len(t, result.Folders, 1)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "sub", result.Folders[0].Name)
	assert.Equal(t, "file.txt", result.Files[0].Name)
}

func (suite *ProviderTestSuite) testListPagination(t *testing.T) {
	p := suite.newProvider(t)
	folder := mustFolder(t, p, "", "paged")

	var want []string
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("file-%02d.txt", i)
		want = append(want, name)
		Upload(t, p, folder.RemoteID, name, []byte(name))
	}

	result := ListAll(t, p, folder.RemoteID, 2)

	var got []string
	for _, f := range result.Files {
		got = append(got, f.Name)
	}
	sort.Strings(got)
	assert.Equal(t, want, got, "every file must be returned exactly once across pages")
}
