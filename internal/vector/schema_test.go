package vector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/weaviate/weaviate/entities/models"

	"weft/internal/vector"
)

type MockSchemaClient struct {
	mock.Mock
}

func (m *MockSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	args := m.Called(ctx, className)
	return args.Bool(0), args.Error(1)
}

func (m *MockSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	args := m.Called(ctx, class)
	return args.Error(0)
}

func (m *MockSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	args := m.Called(ctx, className)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Class), args.Error(1)
}

func (m *MockSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	args := m.Called(ctx, className, property)
	return args.Error(0)
}

func TestEnsureSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesClassWhenMissing", func(t *testing.T) {
		client := new(MockSchemaClient)
		client.On("ClassExists", ctx, vector.ClassName).Return(false, nil)
		client.On("CreateClass", ctx, mock.MatchedBy(func(c *models.Class) bool {
			return c.Class == vector.ClassName && c.Vectorizer == "none"
		})).Return(nil)

		assert.NoError(t, vector.EnsureSchema(ctx, client))
		client.AssertExpectations(t)
	})

	t.Run("BackfillsMissingProperties", func(t *testing.T) {
		client := new(MockSchemaClient)
		client.On("ClassExists", ctx, vector.ClassName).Return(true, nil)
		client.On("GetClass", ctx, vector.ClassName).Return(&models.Class{
			Class: vector.ClassName,
			Properties: []*models.Property{
				{Name: "nodeId"}, {Name: "integrationId"}, {Name: "parentGroupId"},
				{Name: "source"}, {Name: "content"}, {Name: "title"},
				{Name: "url"}, {Name: "author"}, {Name: "createdAt"},
			},
		}, nil)
		client.On("AddProperty", ctx, vector.ClassName, mock.MatchedBy(func(p *models.Property) bool {
			return p.Name == "contentHash"
		})).Return(nil)

		assert.NoError(t, vector.EnsureSchema(ctx, client))
		client.AssertExpectations(t)
	})

	t.Run("NoopWhenSchemaComplete", func(t *testing.T) {
		client := new(MockSchemaClient)
		props := []*models.Property{
			{Name: "nodeId"}, {Name: "integrationId"}, {Name: "parentGroupId"},
			{Name: "source"}, {Name: "content"}, {Name: "title"},
			{Name: "url"}, {Name: "author"}, {Name: "createdAt"}, {Name: "contentHash"},
		}
		client.On("ClassExists", ctx, vector.ClassName).Return(true, nil)
		client.On("GetClass", ctx, vector.ClassName).Return(&models.Class{Class: vector.ClassName, Properties: props}, nil)

		assert.NoError(t, vector.EnsureSchema(ctx, client))
		client.AssertNotCalled(t, "AddProperty", mock.Anything, mock.Anything, mock.Anything)
	})
}
