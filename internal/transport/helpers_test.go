package transport

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

func packageFile(name string, fileType model.FileType, content []byte) model.PackageFile {
	sum := md5.Sum(content)
	return model.PackageFile{
		Name:    name,
		URL:     "https://cdn.example.com/src/" + name,
		Content: content,
		Type:    fileType,
		MD5Hash: hex.EncodeToString(sum[:]),
		Size:    int64(len(content)),
	}
}

func testPackage(extra ...model.PackageFile) *model.DeliveryPackage {
	files := []model.PackageFile{packageFile("MSG-1.xml", model.FileTypeXML, []byte("<NewReleaseMessage/>"))}
	files = append(files, extra...)
	return &model.DeliveryPackage{
		DeliveryID: "job-1",
		UPC:        "123456789012",
		Files:      files,
		Metadata: model.PackageMetadata{
			MessageID:      "MSG-1",
			MessageType:    "NewReleaseMessage",
			MessageSubType: model.MessageSubTypeInitial,
		},
		DistributorID: "dist-1",
	}
}
