package syncer

// GraphQL documents for project synchronization.
//
// labels is requested as a paginated nested collection; later label pages
// are fetched by re-running the same document with the field-scoped
// $labelsCursor variable and locating the project by id in the response.
const projectsQuery = `
query Projects($cursor: String, $labelsCursor: String) {
  projects(membership: true, first: 100, after: $cursor) {
    pageInfo {
      hasNextPage
      endCursor
    }
    nodes {
      id
      name
      webUrl
      description
      fullPath
      repository {
        rootRef
      }
      group {
        id
        fullPath
      }
      labels(first: 100, after: $labelsCursor) {
        pageInfo {
          hasNextPage
          endCursor
        }
        nodes {
          id
          title
        }
      }
      languages {
        name
        share
      }
    }
  }
}
`
