package torrentfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/go-git/go-billy/v5"
	"github.com/jackpal/bencode-go"

	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/magnet"
)

type FileInfo struct {
	Path   []string
	Length int64
}

type TorrentInfo struct {
	Name        string
	PieceLength int64
	Pieces      [][]byte
	Private     bool
	Length      int64
	Files       []FileInfo
	MultiFile   bool
}

type TorrentFile struct {
	InfoHash     magnet.Hash
	Announce     string
	AnnounceList [][]string
	CreationDate int64
	Comment      string
	CreatedBy    string
	Encoding     string
	Info         TorrentInfo
}

// Name, NumFiles and FilePath make a TorrentFile usable as engine metadata.

func (tf *TorrentFile) Name() string {
	return tf.Info.Name
}

func (tf *TorrentFile) NumFiles() int {
	if !tf.Info.MultiFile {
		return 1
	}
	return len(tf.Info.Files)
}

func (tf *TorrentFile) FilePath(i int) string {
	if !tf.Info.MultiFile {
		return tf.Info.Name
	}
	parts := append([]string{tf.Info.Name}, tf.Info.Files[i].Path...)
	return strings.Join(parts, "/")
}

func (tf *TorrentFile) infoDict() map[string]interface{} {
	infoDict := make(map[string]interface{})
	infoDict["name"] = tf.Info.Name
	infoDict["piece length"] = tf.Info.PieceLength
	var pieces bytes.Buffer
	for _, piece := range tf.Info.Pieces {
		pieces.Write(piece)
	}
	infoDict["pieces"] = pieces.String()
	if tf.Info.Private {
		infoDict["private"] = int64(1)
	}
	if tf.Info.MultiFile {
		filesList := make([]interface{}, 0, len(tf.Info.Files))
		for _, file := range tf.Info.Files {
			path := make([]interface{}, 0, len(file.Path))
			for _, p := range file.Path {
				path = append(path, p)
			}
			filesList = append(filesList, map[string]interface{}{
				"length": file.Length,
				"path":   path,
			})
		}
		infoDict["files"] = filesList
	} else {
		infoDict["length"] = tf.Info.Length
	}
	return infoDict
}

// Bencode writes tf as a .torrent document and sets tf.InfoHash from the
// encoded info dictionary.
func (tf *TorrentFile) Bencode(w io.Writer) error {
	infoDict := tf.infoDict()
	hash, err := hashInfo(infoDict)
	if err != nil {
		return err
	}
	tf.InfoHash = hash

	dict := make(map[string]interface{})
	if tf.Announce != "" {
		dict["announce"] = tf.Announce
	}
	if len(tf.AnnounceList) > 0 {
		tiers := make([]interface{}, 0, len(tf.AnnounceList))
		for _, tier := range tf.AnnounceList {
			urls := make([]interface{}, 0, len(tier))
			for _, u := range tier {
				urls = append(urls, u)
			}
			tiers = append(tiers, urls)
		}
		dict["announce-list"] = tiers
	}
	if tf.CreationDate != 0 {
		dict["creation date"] = tf.CreationDate
	}
	if tf.Comment != "" {
		dict["comment"] = tf.Comment
	}
	if tf.CreatedBy != "" {
		dict["created by"] = tf.CreatedBy
	}
	if tf.Encoding != "" {
		dict["encoding"] = tf.Encoding
	}
	dict["info"] = infoDict
	return bencode.Marshal(w, dict)
}

func hashInfo(infoDict map[string]interface{}) (magnet.Hash, error) {
	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, infoDict); err != nil {
		return magnet.Hash{}, fmt.Errorf("encoding info: %w", err)
	}
	return magnet.Hash(metainfo.HashBytes(buf.Bytes())), nil
}

// Parse decodes a .torrent document. The info hash is taken over the info
// dictionary's bytes exactly as they appear in the document, so files whose
// encoding is not canonical still hash to the same value their peers use.
func Parse(r io.Reader) (*TorrentFile, error) {
	var tf TorrentFile

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading torrent: %w", err)
	}
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding torrent: %w", err)
	}

	decoded, err := bencode.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding torrent: %w", err)
	}
	dict, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, errors.New("torrent is not a dictionary")
	}

	tf.Announce, _ = dict["announce"].(string)
	rawAnnounceList, ok := dict["announce-list"].([]interface{})
	if ok {
		for i := range rawAnnounceList {
			tier := make([]string, 0)
			list, ok := rawAnnounceList[i].([]interface{})
			if ok {
				for j := range list {
					item, ok := list[j].(string)
					if ok {
						tier = append(tier, item)
					}
				}
			}
			tf.AnnounceList = append(tf.AnnounceList, tier)
		}
	}
	tf.CreationDate, _ = dict["creation date"].(int64)
	tf.Comment, _ = dict["comment"].(string)
	tf.CreatedBy, _ = dict["created by"].(string)
	tf.Encoding, _ = dict["encoding"].(string)

	infoDict, ok := dict["info"].(map[string]interface{})
	if !ok {
		return nil, errors.New("no info")
	}
	tf.InfoHash = magnet.Hash(mi.HashInfoBytes())
	tf.Info.Name, ok = infoDict["name"].(string)
	if !ok {
		return nil, errors.New("no name")
	}
	tf.Info.PieceLength, ok = infoDict["piece length"].(int64)
	if !ok {
		return nil, errors.New("no piece length")
	}
	piecesString, ok := infoDict["pieces"].(string)
	if !ok {
		return nil, errors.New("no pieces")
	}
	if len(piecesString)%20 != 0 {
		return nil, errors.New("pieces length not divisible by 20")
	}
	for i := 0; i < len(piecesString); i += 20 {
		tf.Info.Pieces = append(tf.Info.Pieces, []byte(piecesString[i:i+20]))
	}
	private, _ := infoDict["private"].(int64)
	tf.Info.Private = private != 0

	length, ok := infoDict["length"].(int64)
	if ok {
		tf.Info.Length = length
		tf.Info.MultiFile = false
		return &tf, nil
	}
	files, ok := infoDict["files"].([]interface{})
	if !ok {
		return nil, errors.New("no files or length")
	}
	if len(files) == 0 {
		return nil, errors.New("empty files list")
	}
	tf.Info.MultiFile = true
	for _, file := range files {
		fileItem, ok := file.(map[string]interface{})
		if !ok {
			return nil, errors.New("invalid file item")
		}
		length, ok := fileItem["length"].(int64)
		if !ok {
			return nil, errors.New("no length in file")
		}
		pathListInterface, ok := fileItem["path"].([]interface{})
		if !ok || len(pathListInterface) == 0 {
			return nil, errors.New("no path in file")
		}
		var pathList []string
		for _, path := range pathListInterface {
			pathString, ok := path.(string)
			if !ok {
				return nil, errors.New("invalid path list in file")
			}
			pathList = append(pathList, pathString)
		}
		tf.Info.Files = append(tf.Info.Files, FileInfo{Path: pathList, Length: length})
		tf.Info.Length += length
	}
	return &tf, nil
}

func ParseFile(fs billy.Filesystem, path string) (*TorrentFile, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	tf, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tf, nil
}
